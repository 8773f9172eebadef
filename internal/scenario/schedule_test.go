package scenario_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-rig/rig/internal/scenario"
)

func TestParseCron(t *testing.T) {
	t.Parallel()

	cases := []struct {
		scenario string
		given    string
		wantErr  string
	}{
		{"valid_5_fields", "*/15 * * * *", ""},
		{"macro_hourly", "@hourly", ""},
		{"macro_every", "@every 5m", ""},
		{"six_fields", "0 */2 * * * *", "expected exactly 5 fields"},
		{"out_of_range", "* * 32 * *", "above maximum (31)"},
		{"garbage", "once in a while", "expected exactly 5 fields"},
		{"empty", "", "empty cron expression"},
	}

	for _, tc := range cases {
		t.Run(tc.scenario, func(t *testing.T) {
			t.Parallel()
			err := scenario.ParseCron(tc.given)
			if tc.wantErr == "" {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				require.ErrorContains(t, err, tc.wantErr)
			}
		})
	}
}

func TestParseEvery(t *testing.T) {
	t.Parallel()

	type then struct {
		duration time.Duration
		err      string
	}
	cases := []struct {
		scenario string
		given    string
		then     then
	}{
		{"seconds", "30s", then{30 * time.Second, ""}},
		{"minutes_and_hours", "1h30m", then{90 * time.Minute, ""}},
		{"days", "2d", then{48 * time.Hour, ""}},
		{"all_segments", "1d2h3m4s", then{26*time.Hour + 3*time.Minute + 4*time.Second, ""}},
		{"empty", "", then{0, "empty duration"}},
		{"unknown_unit", "5x", then{0, "invalid duration format"}},
		{"wrong_order", "30m1h", then{0, "invalid duration format"}},
	}

	for _, tc := range cases {
		t.Run(tc.scenario, func(t *testing.T) {
			t.Parallel()
			d, err := scenario.ParseEvery(tc.given)
			if tc.then.err == "" {
				require.NoError(t, err)
				require.Equal(t, tc.then.duration, d)
			} else {
				require.Error(t, err)
				require.ErrorContains(t, err, tc.then.err)
			}
		})
	}
}
