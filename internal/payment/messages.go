package payment

// Customer-facing explanations for provider status details.
var rejectionMessages = map[string]string{
	"cc_rejected_insufficient_amount":      "La tarjeta no tiene fondos suficientes.",
	"cc_rejected_bad_filled_security_code": "El código de seguridad (CVV) es inválido.",
	"cc_rejected_bad_filled_date":          "La fecha de vencimiento es inválida.",
	"cc_rejected_bad_filled_card_number":   "El número de tarjeta es inválido.",
	"cc_rejected_bad_filled_other":         "Revisa los datos de la tarjeta.",
	"cc_rejected_call_for_authorize":       "Debes autorizar el pago con el banco emisor de tu tarjeta.",
	"cc_rejected_card_disabled":            "La tarjeta está inactiva. Comunícate con tu banco para activarla.",
	"cc_rejected_card_error":               "No pudimos procesar la tarjeta.",
	"cc_rejected_duplicated_payment":       "Ya hiciste un pago por este valor. Usa otra tarjeta u otro medio de pago.",
	"cc_rejected_high_risk":                "El pago fue rechazado por seguridad. Usa otro medio de pago.",
	"cc_rejected_max_attempts":             "Llegaste al límite de intentos. Usa otra tarjeta.",
	"cc_rejected_invalid_installments":     "La tarjeta no acepta ese número de cuotas.",
	"cc_rejected_blacklist":                "No pudimos procesar el pago.",
	"cc_rejected_other_reason":             "El banco emisor rechazó el pago.",
	"pending_contingency":                  "Estamos procesando el pago. Te avisaremos el resultado.",
	"pending_review_manual":                "El pago está en revisión. Te avisaremos el resultado.",
	"pending_waiting_payment":              "Estamos esperando la confirmación del pago.",
	"pending_waiting_transfer":             "Estamos esperando la confirmación de tu banco.",
	"accredited":                           "¡Pago aprobado!",

	"DECLINED": "El pago fue rechazado por la entidad financiera.",
	"ERROR":    "Ocurrió un error con la entidad financiera. Intenta de nuevo.",
	"VOIDED":   "El pago fue anulado.",
	"PENDING":  "Estamos esperando la confirmación del pago.",
	"APPROVED": "¡Pago aprobado!",
}

const defaultRejectionMessage = "No pudimos procesar el pago. Intenta con otro medio de pago."

// RejectionMessage maps a provider status detail to a message for the
// buyer. fallback, when set, wins over the generic message.
func RejectionMessage(detail, fallback string) string {
	if m, ok := rejectionMessages[detail]; ok {
		return m
	}
	if fallback != "" {
		return fallback
	}
	return defaultRejectionMessage
}
