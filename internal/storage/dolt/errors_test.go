package dolt

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/agoralabs/agora/internal/storage"
)

func TestIsTransientError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"lock wait timeout", fmt.Errorf("Error 1205 (HY000): Lock wait timeout exceeded; try restarting transaction"), true},
		{"deadlock", fmt.Errorf("Error 1213 (40001): Deadlock found when trying to get lock"), true},
		{"serialization failure", fmt.Errorf("serialization failure during commit"), true},
		{"optimistic lock", fmt.Errorf("Error 1105 (HY000): optimistic lock failed on database Root update"), true},
		{"too many connections", fmt.Errorf("Error 1040: Too many connections"), true},
		{"bad connection", fmt.Errorf("driver: bad connection"), true},
		{"invalid connection", fmt.Errorf("invalid connection"), true},
		{"broken pipe", fmt.Errorf("write tcp 127.0.0.1:3306: broken pipe"), true},
		{"connection reset", fmt.Errorf("read tcp 127.0.0.1:3306: connection reset by peer"), true},
		{"connection refused", fmt.Errorf("dial tcp 127.0.0.1:3306: connect: connection refused"), true},
		{"read only", fmt.Errorf("cannot update manifest: database is read only"), true},
		{"lost connection", fmt.Errorf("Error 2013: Lost connection to MySQL server during query"), true},
		{"gone away", fmt.Errorf("Error 2006: MySQL server has gone away"), true},
		{"io timeout", fmt.Errorf("read tcp: i/o timeout"), true},
		{"syntax error", fmt.Errorf("Error 1064: You have an error in your SQL syntax"), false},
		{"duplicate entry", fmt.Errorf("Error 1062: Duplicate entry 'a-1' for key 'PRIMARY'"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isTransientError(tt.err); got != tt.expected {
				t.Errorf("isTransientError(%v) = %v, expected %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestIsDuplicateError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"mysql 1062", fmt.Errorf("Error 1062 (23000): Duplicate entry 'agent-1' for key 'PRIMARY'"), true},
		{"dolt primary key", fmt.Errorf("duplicate primary key given: [agent-1]"), true},
		{"dolt unique key", fmt.Errorf("duplicate unique key given: [tok]"), true},
		{"not a duplicate", fmt.Errorf("table not found"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isDuplicateError(tt.err); got != tt.expected {
				t.Errorf("isDuplicateError(%v) = %v, expected %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestWrapDBError(t *testing.T) {
	if err := wrapDBError("op", nil); err != nil {
		t.Errorf("nil error should stay nil, got %v", err)
	}

	err := wrapDBError("get participant", sql.ErrNoRows)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("sql.ErrNoRows should map to ErrNotFound, got %v", err)
	}

	err = wrapDBError("create participant", fmt.Errorf("Error 1062: Duplicate entry 'x' for key 'PRIMARY'"))
	if !errors.Is(err, storage.ErrDuplicateID) {
		t.Errorf("duplicate entry should map to ErrDuplicateID, got %v", err)
	}

	err = wrapDBError("create action", fmt.Errorf("Error 1205: Lock wait timeout exceeded"))
	if !errors.Is(err, storage.ErrTooBusy) {
		t.Errorf("lock wait timeout should map to ErrTooBusy, got %v", err)
	}

	plain := fmt.Errorf("Error 1064: syntax error")
	err = wrapDBError("find actions", plain)
	if errors.Is(err, storage.ErrTooBusy) || errors.Is(err, storage.ErrDuplicateID) || errors.Is(err, storage.ErrNotFound) {
		t.Errorf("plain error should not map to a sentinel, got %v", err)
	}
	if !errors.Is(err, plain) {
		t.Errorf("plain error should stay wrapped, got %v", err)
	}
}
