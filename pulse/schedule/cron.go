package schedule

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/forgepulse/forgepulse/errors"
)

// cronParser accepts standard five-field cron expressions (minute, hour,
// day-of-month, month, day-of-week). Timezones are carried separately as
// IANA names and attached via a CRON_TZ prefix at registration time.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// ValidateSchedule checks a cron expression and IANA timezone name before a
// job is accepted. Both must be valid for a job to be created or updated.
func ValidateSchedule(expr, tz string) error {
	if expr == "" {
		return errors.New("cron expression is empty")
	}
	if _, err := cronParser.Parse(expr); err != nil {
		return errors.Wrapf(err, "invalid cron expression %q", expr)
	}
	if tz == "" {
		return errors.New("timezone is empty")
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return errors.Wrapf(err, "unrecognized timezone %q", tz)
	}
	return nil
}

// cronSpec builds the registration spec carrying the job's timezone.
func cronSpec(expr, tz string) string {
	return "CRON_TZ=" + tz + " " + expr
}

// NextRun computes the next trigger time for a schedule after the given
// instant, in the job's timezone.
func NextRun(expr, tz string, after time.Time) (time.Time, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "unrecognized timezone %q", tz)
	}
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "invalid cron expression %q", expr)
	}
	return sched.Next(after.In(loc)), nil
}
