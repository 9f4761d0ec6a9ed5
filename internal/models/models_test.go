package models

import (
	"testing"
	"time"
)

func TestToolExecution_IsDraft(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name string
		x    ToolExecution
		want bool
	}{
		{"fresh", ToolExecution{ID: "1"}, true},
		{"executed", ToolExecution{ID: "1", ExecutedAt: &now}, false},
		{"listened", ToolExecution{ID: "1", InternalListeners: []string{"workflow"}}, false},
		{"empty listeners", ToolExecution{ID: "1", InternalListeners: []string{}}, true},
	}
	for _, tc := range cases {
		if got := tc.x.IsDraft(); got != tc.want {
			t.Errorf("%s: IsDraft() = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestTerminalStatus(t *testing.T) {
	if !(Todo{Status: TodoDropped}).Terminal() {
		t.Error("dropped todo should be terminal")
	}
	if (Todo{Status: TodoDone}).Terminal() {
		t.Error("done todo should stay in the list")
	}
	if !(UserTask{Status: UserTaskDropped}).Terminal() {
		t.Error("dropped user task should be terminal")
	}
	if (UserTask{Status: UserTaskSnoozed}).Terminal() {
		t.Error("snoozed user task is not terminal")
	}
}
