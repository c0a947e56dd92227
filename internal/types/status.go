/*
 * Copyright 2024 Galactica Network
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *      http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package types

import "fmt"

const (
	// StatusPending is a purchase that was created but not paid yet.
	StatusPending Status = "pending"

	// StatusConfirmed is a paid purchase.
	StatusConfirmed Status = "confirmed"

	// StatusCancelled is a voided purchase.
	StatusCancelled Status = "cancelled"

	// StatusRefunded is a purchase that was paid and then refunded.
	StatusRefunded Status = "refunded"
)

type (
	// Status is the lifecycle status of a purchase as reported by the merchant platform.
	Status string

	// StatusCode is the on-chain representation of Status, packed into the purchase leaf.
	// Changing the mapping is a breaking change for the on-chain verifier.
	StatusCode uint8
)

// ParseStatus converts a raw status string into Status.
func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if !status.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}

	return status, nil
}

// Valid reports whether the status is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusRefunded:
		return true
	default:
		return false
	}
}

// Code returns the on-chain status code.
// Callers must only pass statuses that passed ParseStatus, an unknown status panics.
func (s Status) Code() StatusCode {
	switch s {
	case StatusPending:
		return 0
	case StatusConfirmed:
		return 1
	case StatusCancelled:
		return 2
	case StatusRefunded:
		return 3
	}

	panic(fmt.Sprintf("unknown purchase status %q", string(s)))
}

func (s Status) String() string {
	return string(s)
}
