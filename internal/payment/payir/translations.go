package payir

import "paygate/internal/payment"

var translations = payment.NewTranslator(map[string]string{
	"-1": "ارسال api الزامی می باشد",
	"-2": "کد تراکنش الزامی است",
	"-3": "درگاه پرداختی با api ارسالی یافت نشد و یا غیر فعال می باشد",
	"-4": "فروشنده غیر فعال می باشد",
	"-5": "تراکنش با خطا مواجه شده است",
})

func Translations() payment.Translator { return translations }
