package domain

import "time"

type User struct {
	ID         int64
	Email      string
	Balance    float64
	CreatedAt  time.Time
	LastLocale string
	LastSeen   time.Time
}

// UserUpsert carries the fields written by a login or registration. Empty
// fields leave the stored value untouched.
type UserUpsert struct {
	ID     int64
	Email  string
	Locale string
}

type OrderStatus string

const (
	StatusWaitCode OrderStatus = "WAIT_CODE"
)

type Order struct {
	ID        int64
	UserID    int64
	Provider  string
	Country   string
	Service   string
	Phone     string
	Price     float64
	Status    OrderStatus
	CreatedAt time.Time
}

const (
	Provider5Sim        = "5sim"
	ProviderSMSActivate = "sms-activate"

	Setting5SimEnabled = "provider_5sim_enabled"
	SettingSMSEnabled  = "provider_sms_enabled"

	// DefaultPrice is used for countries without a row in the prices table.
	DefaultPrice = 25.0
)

type Country struct {
	Name string
	Code string
}

type Service struct {
	Name string
	Code string
}

var Countries = []Country{
	{Name: "🇸🇦 Saudi Arabia", Code: "sa"},
	{Name: "🇪🇬 Egypt", Code: "eg"},
	{Name: "🇾🇪 Yemen", Code: "ye"},
	{Name: "🇹🇷 Turkey", Code: "tr"},
}

var Services = []Service{
	{Name: "WhatsApp", Code: "whatsapp"},
	{Name: "Telegram", Code: "telegram"},
}

// DefaultPrices are seeded with insert-or-ignore on first run.
var DefaultPrices = map[string]float64{
	"sa": 30,
	"eg": 25,
	"ye": 20,
	"tr": 18,
}

var DefaultSettings = map[string]string{
	Setting5SimEnabled: "1",
	SettingSMSEnabled:  "1",
}

func LookupCountry(code string) (Country, bool) {
	for _, c := range Countries {
		if c.Code == code {
			return c, true
		}
	}
	return Country{}, false
}

func LookupService(code string) (Service, bool) {
	for _, s := range Services {
		if s.Code == code {
			return s, true
		}
	}
	return Service{}, false
}

type State string

const (
	StateIdle                 State = "idle"
	StateAwaitingEmail        State = "awaiting_email"
	StateChoosingCountry      State = "choosing_country"
	StateChoosingService      State = "choosing_service"
	StateWaitingCode          State = "waiting_code"
	StateAdminChoosingCountry State = "admin_choosing_country"
	StateAdminEnteringPrice   State = "admin_entering_price"
)

// Conversation is the per-user FSM position plus the selections made so far
// in the current flow. It is discarded when the flow finishes.
type Conversation struct {
	UserID int64
	State  State
	Data   ConversationData
}

type ConversationData struct {
	Country      string `json:"country,omitempty"`
	Service      string `json:"service,omitempty"`
	Phone        string `json:"phone,omitempty"`
	AdminCountry string `json:"ad_country,omitempty"`
}

type EventType string

const (
	EventOrderCreated   EventType = "order.created"
	EventUserRegistered EventType = "user.registered"
)

// Event is published to the outbound event stream.
type Event struct {
	EventID    string    `json:"event_id"`
	Type       EventType `json:"type"`
	UserID     int64     `json:"user_id"`
	Email      string    `json:"email,omitempty"`
	Country    string    `json:"country,omitempty"`
	Service    string    `json:"service,omitempty"`
	Provider   string    `json:"provider,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	Price      float64   `json:"price,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Button is an inline or reply keyboard button. Data is empty for reply
// keyboards.
type Button struct {
	Text string
	Data string
}

type Keyboard struct {
	Inline bool
	Rows   [][]Button
}
