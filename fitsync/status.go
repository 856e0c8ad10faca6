// Copyright 2025 The FitGenius Authors
// SPDX-License-Identifier: Apache-2.0

package fitsync

import (
	"encoding/json"
	"time"
)

// Result constructors, one per outcome.

func resultSucceeded(op SyncOperation, version int64, ts time.Time) OperationSuccess {
	return OperationSuccess{
		SyncOperation:   op,
		ServerVersion:   version,
		ServerTimestamp: ts,
	}
}

func resultConflict(op SyncOperation, conflictType string, local, server json.RawMessage) OperationConflict {
	return OperationConflict{
		SyncOperation: op,
		Conflict: Conflict{
			Type:       conflictType,
			LocalData:  local,
			ServerData: server,
		},
	}
}

func resultFailed(op SyncOperation, msg string) OperationFailure {
	return OperationFailure{
		SyncOperation: op,
		Error:         msg,
	}
}
