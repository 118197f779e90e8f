package cluster

import (
	"testing"

	types "github.com/weftlabs/weft-backend/internal/domain"
)

func TestSanitizeName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"C01ABC", "c01abc"},
		{"octo/repo", "octo-repo"},
		{"My_Channel!", "my-channel-"},
		{"already-ok.name", "already-ok.name"},
	}
	for _, c := range cases {
		if got := SanitizeName(c.in); got != c.want {
			t.Fatalf("SanitizeName(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestJobName(t *testing.T) {
	got := JobName(types.SourceSlack, "C01ABC", "1712000000.0", "2")
	want := "slack-processor-c01abc-1712000000.0-2"
	if got != want {
		t.Fatalf("JobName = %q, want %q", got, want)
	}

	got = JobName(types.SourceGithub, "octo/repo", "", "0")
	want = "github-processor-octo-repo-0"
	if got != want {
		t.Fatalf("JobName without watermark = %q, want %q", got, want)
	}
}

func TestResourceNames(t *testing.T) {
	if got := ResourceName(types.SourceSlack, types.RoleWorker, types.KindDeployment); got != "slack-worker-deployment" {
		t.Fatalf("ResourceName = %q", got)
	}
	if got := ProcessorPattern(types.SourceGithub); got != "github-processor-" {
		t.Fatalf("ProcessorPattern = %q", got)
	}
}

func TestStatusFromJobState(t *testing.T) {
	cases := []struct {
		state JobState
		want  types.Status
	}{
		{JobState{Found: false}, types.StatusSuccess},
		{JobState{Found: true, Complete: true}, types.StatusSuccess},
		{JobState{Found: true, Failed: true}, types.StatusFailed},
		{JobState{Found: true}, types.StatusRunning},
	}
	for _, c := range cases {
		if got := StatusFromJobState(c.state); got != c.want {
			t.Fatalf("StatusFromJobState(%+v) = %s, want %s", c.state, got, c.want)
		}
	}
}

func TestValidateSchedule(t *testing.T) {
	if err := ValidateSchedule("0 * * * *"); err != nil {
		t.Fatalf("ValidateSchedule hourly: %v", err)
	}
	if err := ValidateSchedule("not-a-cron"); err == nil {
		t.Fatalf("ValidateSchedule should reject malformed expression")
	}
}
