package domain

import (
	"errors"
	"strings"
)

// Status is a driver presence status as stored in the `drivers` table.
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

var ErrInvalidStatus = errors.New("invalid driver status")

// ParseStatus normalizes (lowercases+trims) and validates a status string.
func ParseStatus(in string) (Status, error) {
	status := Status(strings.ToLower(strings.TrimSpace(in)))
	if status.Valid() {
		return status, nil
	}
	return "", ErrInvalidStatus
}

// Valid reports whether the status is one of the allowed constants.
func (status Status) Valid() bool {
	switch status {
	case StatusOnline, StatusOffline:
		return true
	default:
		return false
	}
}

// String returns the string representation of the Status.
func (status Status) String() string {
	return string(status)
}
