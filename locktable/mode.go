//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ / / |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2026 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

package locktable

// LockMode selects how a record lock is acquired. The try variants never
// block and fail with lockerrors.ErrBusy on contention.
type LockMode int

const (
	ModeShared LockMode = iota
	ModeExclusive
	ModeTryShared
	ModeTryExclusive
)

func (m LockMode) String() string {
	switch m {
	case ModeShared:
		return "shared"
	case ModeExclusive:
		return "exclusive"
	case ModeTryShared:
		return "try-shared"
	case ModeTryExclusive:
		return "try-exclusive"
	default:
		return "unknown"
	}
}

func (m LockMode) valid() bool {
	return m >= ModeShared && m <= ModeTryExclusive
}

func (m LockMode) exclusive() bool {
	return m == ModeExclusive || m == ModeTryExclusive
}

func (m LockMode) blocking() bool {
	return m == ModeShared || m == ModeExclusive
}
