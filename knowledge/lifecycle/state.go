//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

package lifecycle

import (
	"fmt"
	"time"
)

// State is a stage of the index lifecycle.
type State int32

// Lifecycle states.
const (
	// StateEmpty means no index is available in memory.
	StateEmpty State = iota
	// StateLoaded means a snapshot was restored and is being checked against
	// the document directory.
	StateLoaded
	// StateStalePendingMerge means new or changed files are being embedded
	// and merged into the loaded index.
	StateStalePendingMerge
	// StateRebuilding means the whole corpus is being embedded from scratch.
	StateRebuilding
	// StateReady means the published index is usable.
	StateReady
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "EMPTY"
	case StateLoaded:
		return "LOADED"
	case StateStalePendingMerge:
		return "STALE_PENDING_MERGE"
	case StateRebuilding:
		return "REBUILDING"
	case StateReady:
		return "READY"
	}
	return "UNKNOWN"
}

// Transition labels reported in metrics and Stats.
const (
	TransitionReuse   = "reuse"
	TransitionRestore = "restore"
	TransitionMerge   = "merge"
	TransitionRebuild = "rebuild"
)

// Stats describes the published index.
type Stats struct {
	State          State     `json:"state"`
	Generation     uint64    `json:"generation"`
	Fragments      int       `json:"fragments"`
	TrackedFiles   int       `json:"tracked_files"`
	LastReloadAt   time.Time `json:"last_reload_at"`
	LastTransition string    `json:"last_transition,omitempty"`
	LastError      string    `json:"last_error,omitempty"`
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	for st := StateEmpty; st <= StateReady; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown index state %q", text)
}
