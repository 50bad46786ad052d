package contracts

import "time"

// ObservationScheduleEntry is one scheduled evaluation point
type ObservationScheduleEntry struct {
	Index           int       `json:"index"` // 1-based period number
	ObservationDate time.Time `json:"observation_date"`
	PaymentDate     time.Time `json:"payment_date"`
	CouponBarrier   float64   `json:"coupon_barrier"`
	AutocallBarrier *float64  `json:"autocall_barrier,omitempty"` // nil = no autocall this period
	CouponRate      float64   `json:"coupon_rate"`
	IsFinal         bool      `json:"is_final"`
}

// Callable reports whether an autocall can trigger at this observation
func (e ObservationScheduleEntry) Callable() bool {
	return e.AutocallBarrier != nil
}
