package amazonpay

const (
	ChargeAuthorizationInitiated = "AuthorizationInitiated"
	ChargeAuthorized             = "Authorized"
	ChargeCaptureInitiated       = "CaptureInitiated"
	ChargeCaptured               = "Captured"
	ChargeCanceled               = "Canceled"
	ChargeDeclined               = "Declined"

	ChargePermissionChargeable    = "Chargeable"
	ChargePermissionNonChargeable = "NonChargeable"
	ChargePermissionClosed        = "Closed"

	CheckoutSessionOpen      = "Open"
	CheckoutSessionCompleted = "Completed"
	CheckoutSessionCanceled  = "Canceled"

	PaymentIntentAuthorizeWithCapture = "AuthorizeWithCapture"
	PaymentIntentAuthorize            = "Authorize"
	PaymentIntentConfirm              = "Confirm"

	ReasonCheckoutSessionCanceled = "CheckoutSessionCanceled"
	ReasonDeclined                = "Declined"
	ReasonBuyerCanceled           = "BuyerCanceled"
)

type Price struct {
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currencyCode"`
}

type StatusReason struct {
	ReasonCode        string `json:"reasonCode"`
	ReasonDescription string `json:"reasonDescription"`
}

type StatusDetails struct {
	State                string         `json:"state"`
	ReasonCode           string         `json:"reasonCode,omitempty"`
	ReasonDescription    string         `json:"reasonDescription,omitempty"`
	Reasons              []StatusReason `json:"reasons,omitempty"`
	LastUpdatedTimestamp string         `json:"lastUpdatedTimestamp,omitempty"`
}

type MerchantMetadata struct {
	MerchantReferenceID string `json:"merchantReferenceId,omitempty"`
	MerchantStoreName   string `json:"merchantStoreName,omitempty"`
	NoteToBuyer         string `json:"noteToBuyer,omitempty"`
	CustomInformation   string `json:"customInformation,omitempty"`
}

type Charge struct {
	ChargeID           string           `json:"chargeId"`
	ChargePermissionID string           `json:"chargePermissionId"`
	ChargeAmount       Price            `json:"chargeAmount"`
	CaptureAmount      *Price           `json:"captureAmount,omitempty"`
	RefundedAmount     *Price           `json:"refundedAmount,omitempty"`
	StatusDetails      StatusDetails    `json:"statusDetails"`
	MerchantMetadata   MerchantMetadata `json:"merchantMetadata"`
	CreationTimestamp  string           `json:"creationTimestamp,omitempty"`
	ReleaseEnvironment string           `json:"releaseEnvironment,omitempty"`
}

type ChargePermission struct {
	ChargePermissionID   string           `json:"chargePermissionId"`
	ChargePermissionType string           `json:"chargePermissionType,omitempty"`
	StatusDetails        StatusDetails    `json:"statusDetails"`
	MerchantMetadata     MerchantMetadata `json:"merchantMetadata"`
	CreationTimestamp    string           `json:"creationTimestamp,omitempty"`
	ExpirationTimestamp  string           `json:"expirationTimestamp,omitempty"`
	ReleaseEnvironment   string           `json:"releaseEnvironment,omitempty"`
}

type Refund struct {
	RefundID          string        `json:"refundId"`
	ChargeID          string        `json:"chargeId"`
	RefundAmount      Price         `json:"refundAmount"`
	SoftDescriptor    string        `json:"softDescriptor,omitempty"`
	StatusDetails     StatusDetails `json:"statusDetails"`
	CreationTimestamp string        `json:"creationTimestamp,omitempty"`
}

type WebCheckoutDetails struct {
	CheckoutReviewReturnURL string `json:"checkoutReviewReturnUrl,omitempty"`
	CheckoutResultReturnURL string `json:"checkoutResultReturnUrl,omitempty"`
	AmazonPayRedirectURL    string `json:"amazonPayRedirectUrl,omitempty"`
}

type PaymentDetails struct {
	PaymentIntent                 string `json:"paymentIntent,omitempty"`
	CanHandlePendingAuthorization bool   `json:"canHandlePendingAuthorization"`
	ChargeAmount                  *Price `json:"chargeAmount,omitempty"`
	SoftDescriptor                string `json:"softDescriptor,omitempty"`
}

type Constraint struct {
	ConstraintID string `json:"constraintId"`
	Description  string `json:"description"`
}

type CheckoutSession struct {
	CheckoutSessionID  string             `json:"checkoutSessionId"`
	WebCheckoutDetails WebCheckoutDetails `json:"webCheckoutDetails"`
	PaymentDetails     PaymentDetails     `json:"paymentDetails"`
	MerchantMetadata   MerchantMetadata   `json:"merchantMetadata"`
	StatusDetails      StatusDetails      `json:"statusDetails"`
	ChargePermissionID string             `json:"chargePermissionId,omitempty"`
	ChargeID           string             `json:"chargeId,omitempty"`
	Constraints        []Constraint       `json:"constraints,omitempty"`
}

type createRefundRequest struct {
	ChargeID     string `json:"chargeId"`
	RefundAmount Price  `json:"refundAmount"`
}

type UpdateCheckoutSessionRequest struct {
	PaymentDetails   *PaymentDetails   `json:"paymentDetails,omitempty"`
	MerchantMetadata *MerchantMetadata `json:"merchantMetadata,omitempty"`
}

type CompleteCheckoutSessionRequest struct {
	ChargeAmount Price `json:"chargeAmount"`
}
