package i18n

// translations maps notice key → language code → format string.
// Format verbs follow fmt.Sprintf conventions.
//
// Supported languages: en (English), ru (Russian), tr (Turkish), tk (Turkmen).
var translations = map[string]map[string]string{

	// ─── Account warnings ────────────────────────────────────────────────────
	"notice.refund_loop.body": {
		"en": "We noticed an unusual number of refund requests on your account. Continued patterns may limit account features.",
		"ru": "Мы заметили необычно большое количество запросов на возврат средств на вашем аккаунте. Повторение может ограничить функции аккаунта.",
		"tr": "Hesabınızda olağandışı sayıda iade talebi fark ettik. Bunun devam etmesi hesap özelliklerini kısıtlayabilir.",
		"tk": "Hasabyňyzda adaty bolmadyk köp yzyna gaýtaryş soragy gördük. Dowam etse, hasap mümkinçilikleri çäklendirilip bilner.",
	},
	"notice.cancellation_farming.body": {
		"en": "Frequent late cancellations affect other members. Repeated cancellations may limit your booking privileges.",
		"ru": "Частые поздние отмены затрагивают других участников. Повторные отмены могут ограничить ваши возможности бронирования.",
		"tr": "Sık yapılan geç iptaller diğer üyeleri etkiler. Tekrarlanan iptaller rezervasyon ayrıcalıklarınızı kısıtlayabilir.",
		"tk": "Ýygy-ýygydan giç ýatyrmalar beýleki agzalara täsir edýär. Gaýtalanýan ýatyrmalar bron mümkinçilikleriňizi çäklendirip biler.",
	},
	"notice.generic.body": {
		"en": "Unusual activity was detected on your account. If this was not you, please review your recent activity.",
		"ru": "На вашем аккаунте обнаружена необычная активность. Если это были не вы, проверьте недавние действия.",
		"tr": "Hesabınızda olağandışı etkinlik tespit edildi. Bu siz değilseniz lütfen son etkinliklerinizi gözden geçirin.",
		"tk": "Hasabyňyzda adaty bolmadyk hereket ýüze çykaryldy. Bu siz däl bolsaňyz, soňky hereketleriňizi barlaň.",
	},

	// ─── Enforcement outcomes ────────────────────────────────────────────────
	"notice.wallet_frozen.body": {
		"en": "Payouts on your account are temporarily paused while we review recent activity. Our team will contact you shortly.",
		"ru": "Выплаты на вашем аккаунте временно приостановлены на время проверки недавней активности. Наша команда свяжется с вами в ближайшее время.",
		"tr": "Son etkinlikleri incelerken hesabınızdaki ödemeler geçici olarak durduruldu. Ekibimiz kısa süre içinde sizinle iletişime geçecek.",
		"tk": "Soňky hereketleri barlaýarkak, hasabyňyzdaky tölegler wagtlaýyn saklanyldy. Toparymyz ýakyn wagtda siziň bilen habarlaşar.",
	},
	"notice.case_cleared.body": {
		"en": "Our review of your account is complete and no further action is needed. Thank you for your patience.",
		"ru": "Проверка вашего аккаунта завершена, дополнительных действий не требуется. Спасибо за терпение.",
		"tr": "Hesabınızın incelemesi tamamlandı ve başka bir işlem gerekmiyor. Sabrınız için teşekkürler.",
		"tk": "Hasabyňyzyň barlagy tamamlandy we başga hereket gerek däl. Sabryňyz üçin sag boluň.",
	},

	// ─── Appeals ─────────────────────────────────────────────────────────────
	// %d = business days until review
	"notice.appeal_received.body": {
		"en": "We received your appeal and an investigator will review it within %d business days.",
		"ru": "Мы получили вашу апелляцию, специалист рассмотрит её в течение %d рабочих дней.",
		"tr": "İtirazınızı aldık, bir inceleme uzmanı %d iş günü içinde değerlendirecek.",
		"tk": "Şikaýatyňyzy aldyk, barlagçy ony %d iş gününiň içinde seder.",
	},
}
