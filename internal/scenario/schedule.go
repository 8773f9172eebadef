package scenario

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	gocron "github.com/go-co-op/gocron/v2"
	"github.com/robfig/cron/v3"

	"github.com/go-rig/rig/internal/model"
)

// ParseCron parses a cron expression that have 5 fields
// return error if it fails
func ParseCron(expr string) error {
	e := strings.TrimSpace(expr)
	if e == "" {
		return fmt.Errorf("empty cron expression")
	}

	// Macros / @every handled by ParseStandard (it also supports plain 5-field specs).
	if strings.HasPrefix(e, "@") {
		_, err := cron.ParseStandard(e)
		return err
	}

	parser5 := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

	// len == 5
	_, err := parser5.Parse(e)
	return err
}

var everyRx = regexp.MustCompile(`^(\d+d)?(\d+h)?(\d+m)?(\d+s)?$`)

// ParseEvery parses strings matching ^(\d+d)?(\d+h)?(\d+m)?(\d+s)?$ into time.Duration.
// Supports ordered day/hour/minute/second segments. Empty string rejected.
func ParseEvery(s string) (time.Duration, error) {
	if s == "" {
		return 0, errors.New("empty duration")
	}
	m := everyRx.FindStringSubmatch(s)
	if m == nil {
		return 0, errors.New("invalid duration format")
	}
	var total time.Duration
	for _, seg := range m[1:] { // groups 1..4
		if seg == "" {
			continue
		}
		// seg like "12d"
		numStr := seg[:len(seg)-1]
		val, err := strconv.ParseInt(numStr, 10, 64)
		if err != nil {
			return 0, errors.New("invalid number in " + seg)
		}
		var add time.Duration
		switch last := seg[len(seg)-1]; last {
		case 'd':
			add = time.Hour * 24 * time.Duration(val)
		case 'h':
			add = time.Hour * time.Duration(val)
		case 'm':
			add = time.Minute * time.Duration(val)
		case 's':
			add = time.Second * time.Duration(val)
		default:
			return 0, errors.New("unknown unit in " + seg)
		}
		// overflow check
		if add > 0 && total > time.Duration(math.MaxInt64)-add {
			return 0, errors.New("duration overflow")
		}
		total += add
	}
	return total, nil
}

// scheduleJob validates the schedule block and turns it into a gocron
// job definition.
func scheduleJob(cfg model.Schedule) (gocron.JobDefinition, error) {
	switch {
	case cfg.Cron != "" && cfg.Every != "":
		return nil, errors.New("schedule.cron and schedule.every are mutually exclusive")
	case cfg.Cron != "":
		if err := ParseCron(cfg.Cron); err != nil {
			return nil, fmt.Errorf("parsing schedule.cron: %w", err)
		}
		return gocron.CronJob(cfg.Cron, false), nil
	case cfg.Every != "":
		d, err := ParseEvery(cfg.Every)
		if err != nil {
			return nil, fmt.Errorf("parsing schedule.every: %w", err)
		}
		return gocron.DurationJob(d), nil
	default:
		return nil, errors.New("both schedule.cron and schedule.every are empty")
	}
}

func newScheduler(cfg model.Schedule, startFunc func()) (gocron.Scheduler, error) {
	job, err := scheduleJob(cfg)
	if err != nil {
		return nil, err
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("initializing gocron scheduler: %w", err)
	}
	_, err = s.NewJob(
		job,
		gocron.NewTask(startFunc),
	)
	if err != nil {
		return nil, fmt.Errorf("initializing gocron job: %w", err)
	}
	return s, nil
}
