package enums

import "fmt"

// SubscriptionStatus maps to the subscription_status enum in Postgres.
type SubscriptionStatus string

const (
	SubscriptionActive SubscriptionStatus = "ACTIVE"
	SubscriptionPaused SubscriptionStatus = "PAUSED"
)

// IsValid reports whether the value matches the canonical subscription_status enum.
func (s SubscriptionStatus) IsValid() bool {
	return s == SubscriptionActive || s == SubscriptionPaused
}

// ParseSubscriptionStatus converts raw input into SubscriptionStatus.
func ParseSubscriptionStatus(value string) (SubscriptionStatus, error) {
	switch SubscriptionStatus(value) {
	case SubscriptionActive:
		return SubscriptionActive, nil
	case SubscriptionPaused:
		return SubscriptionPaused, nil
	}
	return "", fmt.Errorf("invalid subscription status %q", value)
}

// PoolStatus maps to the pool_status enum in Postgres.
type PoolStatus string

const (
	PoolActive    PoolStatus = "ACTIVE"
	PoolSuspended PoolStatus = "SUSPENDED"
)

// IsValid reports whether the value matches the canonical pool_status enum.
func (s PoolStatus) IsValid() bool {
	return s == PoolActive || s == PoolSuspended
}

// ParsePoolStatus converts raw input into PoolStatus.
func ParsePoolStatus(value string) (PoolStatus, error) {
	switch PoolStatus(value) {
	case PoolActive:
		return PoolActive, nil
	case PoolSuspended:
		return PoolSuspended, nil
	}
	return "", fmt.Errorf("invalid pool status %q", value)
}
