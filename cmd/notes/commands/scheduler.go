package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/notes/backend/internal/calendar"
	"github.com/wonny/notes/backend/internal/scheduler"
	"github.com/wonny/notes/backend/internal/scheduler/jobs"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄러 관리",
	Long: `Starts the job scheduler or runs one of its jobs.

Subcommands:
  start   - 스케줄러 시작
  list    - 등록된 작업 목록
  run     - 특정 작업 즉시 실행

Example:
  go run ./cmd/notes scheduler start
  go run ./cmd/notes scheduler run event_detection`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작",
		Long: `Starts the scheduler with every registered job:
- event_detection: EVENT_DETECTION_SCHEDULE (default every 15 minutes)
- holiday_refresh: daily 06:00, when a holiday page is configured

Stop with Ctrl+C.`,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 작업 목록",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "특정 작업 즉시 실행",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
}

// newScheduler registers the jobs on a fresh scheduler
func newScheduler(d *deps, evaluator jobs.BatchEvaluator) (*scheduler.Scheduler, error) {
	sched := scheduler.New(d.log)

	if err := sched.AddJob(jobs.NewEventDetectionJob(d.products, evaluator, d.cfg.Engine.DetectionSchedule, d.log)); err != nil {
		return nil, err
	}
	if r, ok := d.holidays.(calendar.Refresher); ok {
		if err := sched.AddJob(jobs.NewHolidayRefreshJob(r, d.log)); err != nil {
			return nil, err
		}
	}
	return sched, nil
}

func initScheduler(cmd *cobra.Command) (*deps, *scheduler.Scheduler, error) {
	d, err := bootstrap(cmd.Context(), os.Stdout)
	if err != nil {
		return nil, nil, err
	}
	if err := d.requireProducts(); err != nil {
		d.Close()
		return nil, nil, err
	}
	sched, err := newScheduler(d, d.evaluator(nil))
	if err != nil {
		d.Close()
		return nil, nil, fmt.Errorf("init scheduler: %w", err)
	}
	return d, sched, nil
}

func runScheduler(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Notes Scheduler ===")

	d, sched, err := initScheduler(cmd)
	if err != nil {
		return err
	}
	defer d.Close()

	sched.Start()

	fmt.Println("\n✅ Scheduler started successfully")
	fmt.Println("\nRegistered jobs:")
	for _, name := range sched.JobNames() {
		fmt.Printf("  - %s\n", name)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down scheduler...")
	sched.Stop()

	for _, st := range sched.Stats() {
		fmt.Printf("📊 %s: %d runs, %.1f%% success\n", st.JobName, st.TotalRuns, st.SuccessRate*100)
	}
	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	d, sched, err := initScheduler(cmd)
	if err != nil {
		return err
	}
	defer d.Close()

	stats := sched.Stats()
	fmt.Println("Registered jobs:")
	for _, name := range sched.JobNames() {
		fmt.Printf("  - %-16s %s\n", name, stats[name].Schedule)
	}
	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	d, sched, err := initScheduler(cmd)
	if err != nil {
		return err
	}
	defer d.Close()

	fmt.Printf("Running job: %s\n", args[0])
	result, err := sched.RunNow(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("run job: %w", err)
	}

	if !result.Success {
		return fmt.Errorf("job %s failed after %d attempts: %s", result.JobName, result.Attempts, result.Error)
	}
	fmt.Printf("✅ Job %s completed in %s\n", result.JobName, result.Duration.Round(time.Millisecond))
	return nil
}
