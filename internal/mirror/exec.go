package mirror

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"

	"backend-caravan/internal/config"
)

// runCommand is swapped out in tests to capture argv.
var runCommand = func(ctx context.Context, path string, args []string) error {
	cmd := exec.CommandContext(ctx, path, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w (%s)", path, err, out)
	}
	return nil
}

// ExecSink shells out to the mirror CLI for every reading, invoking the
// upsert_location reducer with positional arguments.
type ExecSink struct {
	cliPath   string
	server    string
	database  string
	anonymous bool
}

func NewExecSink(cfg config.Config) *ExecSink {
	return &ExecSink{
		cliPath:   cfg.MirrorCLIPath,
		server:    cfg.MirrorServer,
		database:  cfg.MirrorDatabase,
		anonymous: cfg.MirrorAnonymous,
	}
}

func (s *ExecSink) Publish(ctx context.Context, retreatID, participantID int64, r Reading) error {
	args := []string{"call", "--server", s.server}
	if s.anonymous {
		args = append(args, "--anonymous")
	}
	args = append(args, "-y", s.database, "upsert_location", "--",
		strconv.FormatInt(participantID, 10),
		strconv.FormatInt(retreatID, 10),
		formatFloat(r.Lat),
		formatFloat(r.Lng),
		formatOptional(r.AccuracyM),
		formatOptional(r.SpeedMps),
		formatOptional(r.Heading),
		formatOptional(r.AltitudeM),
		strconv.FormatInt(r.RecordedAt.UnixMilli(), 10),
	)
	return runCommand(ctx, s.cliPath, args)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatOptional(f *float64) string {
	if f == nil {
		return "0"
	}
	return formatFloat(*f)
}
