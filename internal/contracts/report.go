package contracts

import "time"

// UnavailableDisplay is the display marker of a field whose inputs failed
const UnavailableDisplay = "unavailable"

// Component is one explained term of a redemption formula
type Component struct {
	Label   string  `json:"label"`
	Value   float64 `json:"value"`
	Display string  `json:"display"`
	Note    string  `json:"note,omitempty"`
}

// EvaluationReport is the output artifact of one evaluation run. It is
// rebuilt on every call and carries raw values next to their display strings.
type EvaluationReport struct {
	RunID          string       `json:"run_id"`
	ProductID      string       `json:"product_id"`
	ProductName    string       `json:"product_name"`
	ISIN           string       `json:"isin,omitempty"`
	Currency       string       `json:"currency"`
	Template       TemplateKind `json:"template"`
	EvaluationDate time.Time    `json:"evaluation_date"`
	GeneratedAt    time.Time    `json:"generated_at"`

	Status        ProductState `json:"status"`
	StatusDisplay string       `json:"status_display"`

	DataQuality    DataQuality `json:"data_quality"`
	HasCurrentData bool        `json:"has_current_data"`

	Underlyings []UnderlyingReport `json:"underlyings"`
	Basket      BasketReport       `json:"basket"`
	Redemption  RedemptionReport   `json:"redemption"`

	Memory        MemoryState `json:"memory"`
	MemoryDisplay string      `json:"memory_display"`

	ScheduleAvailable bool          `json:"schedule_available"`
	ScheduleError     string        `json:"schedule_error,omitempty"`
	Schedule          []ScheduleRow `json:"schedule"`

	Events    []EventView    `json:"events"`
	NewEvents int            `json:"new_events"`
	Timeline  []TimelineItem `json:"timeline"`

	Trace []TraceEntry `json:"trace,omitempty"`
}

// UnderlyingReport is the state of one underlying on the evaluation date
type UnderlyingReport struct {
	Ticker             string       `json:"ticker"`
	ResolvedTicker     string       `json:"resolved_ticker,omitempty"`
	Name               string       `json:"name,omitempty"`
	Currency           string       `json:"currency,omitempty"`
	Strike             float64      `json:"strike"`
	StrikeDisplay      string       `json:"strike_display"`
	Price              float64      `json:"price"`
	PriceDisplay       string       `json:"price_display"`
	PriceDate          *time.Time   `json:"price_date,omitempty"`
	Performance        float64      `json:"performance"`
	PerformanceDisplay string       `json:"performance_display"`
	Level              float64      `json:"level"`
	LevelDisplay       string       `json:"level_display"`
	Available          bool         `json:"available"`
	DataQuality        DataQuality  `json:"data_quality"`
	HasCurrentData     bool         `json:"has_current_data"`
	BarrierState       BarrierState `json:"barrier_state,omitempty"`
}

// BasketReport is the reduced basket on the evaluation date
type BasketReport struct {
	Policy             string  `json:"policy"`
	Available          bool    `json:"available"`
	Performance        float64 `json:"performance"`
	PerformanceDisplay string  `json:"performance_display"`
	Level              float64 `json:"level"`
	LevelDisplay       string  `json:"level_display"`
	Reason             string  `json:"reason,omitempty"`
}

// RedemptionReport is the indicative (or realized) redemption
type RedemptionReport struct {
	Available     bool        `json:"available"`
	Basis         string      `json:"basis"` // indicative, autocalled, called, matured
	Value         float64     `json:"value"`
	ValueDisplay  string      `json:"value_display"`
	Formula       string      `json:"formula"`
	Components    []Component `json:"components,omitempty"`
	Amount        float64     `json:"amount"`
	AmountDisplay string      `json:"amount_display"`
	Reason        string      `json:"reason,omitempty"`
}

// ScheduleRow is one observation in presentation form
type ScheduleRow struct {
	Index              int       `json:"index"`
	ObservationDate    time.Time `json:"observation_date"`
	ObservationDisplay string    `json:"observation_display"`
	PaymentDate        time.Time `json:"payment_date"`
	PaymentDisplay     string    `json:"payment_display"`
	AutocallBarrier    *float64  `json:"autocall_barrier,omitempty"`
	AutocallDisplay    string    `json:"autocall_display"`
	CouponBarrier      float64   `json:"coupon_barrier"`
	CouponBarrierDisp  string    `json:"coupon_barrier_display"`
	CouponRate         float64   `json:"coupon_rate"`
	CouponDisplay      string    `json:"coupon_display"`
	Status             string    `json:"status"` // observed, next, upcoming, suppressed
	BasketLevel        *float64  `json:"basket_level,omitempty"`
	BasketLevelDisplay string    `json:"basket_level_display"`
	Outcome            string    `json:"outcome,omitempty"`
}

// EventView is an event with display strings
type EventView struct {
	Event
	Fresh         bool   `json:"fresh"` // emitted by this run rather than recorded earlier
	DateDisplay   string `json:"date_display"`
	LevelDisplay  string `json:"level_display"`
	ImpactDisplay string `json:"impact_display"`
}

// TimelineItem is one dated line of the product timeline
type TimelineItem struct {
	Date        time.Time `json:"date"`
	DateDisplay string    `json:"date_display"`
	Kind        string    `json:"kind"` // trade, observation, payment, event, maturity
	Label       string    `json:"label"`
}
