package models

import "time"

// RewardPointGranting records points a user earned, e.g. for completing a semester's evaluations.
type RewardPointGranting struct {
	ID            string    `db:"id" json:"id"`
	UserProfileID string    `db:"user_profile_id" json:"user_profile_id"`
	SemesterID    string    `db:"semester_id" json:"semester_id"`
	Value         int       `db:"value" json:"value"`
	GrantingTime  time.Time `db:"granting_time" json:"granting_time"`
}

// RewardPointRedemptionEvent is a window in which points can be exchanged.
type RewardPointRedemptionEvent struct {
	ID            string    `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	Date          time.Time `db:"date" json:"date"`
	RedeemEndDate time.Time `db:"redeem_end_date" json:"redeem_end_date"`
	Step          int       `db:"step" json:"step"`
}

// OpenOn reports whether redemptions are still accepted on the given day.
func (e RewardPointRedemptionEvent) OpenOn(day time.Time) bool {
	return !dateOf(e.RedeemEndDate).Before(dateOf(day))
}

// RewardPointRedemption is an append-only ledger entry of points spent at an event.
type RewardPointRedemption struct {
	ID             string    `db:"id" json:"id"`
	UserProfileID  string    `db:"user_profile_id" json:"user_profile_id"`
	EventID        string    `db:"event_id" json:"event_id"`
	Value          int       `db:"value" json:"value"`
	RedemptionTime time.Time `db:"redemption_time" json:"redemption_time"`
}

// PointBalance summarises a user's ledger.
type PointBalance struct {
	Granted  int `db:"granted" json:"granted"`
	Redeemed int `db:"redeemed" json:"redeemed"`
}

// Available is the number of points the user may still redeem.
func (b PointBalance) Available() int {
	return b.Granted - b.Redeemed
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
