package channel

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/linanwx/ferry/cron"
	"github.com/linanwx/ferry/internal/runtimecfg"
	"github.com/linanwx/ferry/logger"
)

// ScheduleChannel turns configured schedules into commands. Replies are
// logged since nobody is waiting on them.
type ScheduleChannel struct {
	jobs     []cron.Job
	sched    *cron.Scheduler
	messages chan *Message
	done     chan struct{}
	stopOnce sync.Once
	msgID    atomic.Int64
}

// NewScheduleChannel prepares jobs; nothing fires before Start.
func NewScheduleChannel(jobs []cron.Job) (*ScheduleChannel, error) {
	s := &ScheduleChannel{
		jobs:     append([]cron.Job(nil), jobs...),
		messages: make(chan *Message, runtimecfg.ScheduleChannelBufferSize),
		done:     make(chan struct{}),
	}
	sched, err := cron.NewScheduler(s.fire)
	if err != nil {
		return nil, err
	}
	s.sched = sched
	return s, nil
}

func (s *ScheduleChannel) Name() string {
	return "schedule"
}

func (s *ScheduleChannel) Start(_ context.Context) error {
	n := s.sched.Load(s.jobs)
	s.sched.Start()
	logger.Info("schedule channel started", "jobs", n)
	return nil
}

func (s *ScheduleChannel) Stop() error {
	s.stopOnce.Do(func() {
		close(s.done)
		s.sched.Stop()
		logger.Info("schedule channel stopped")
	})
	return nil
}

// Send logs the reply to a scheduled command.
func (s *ScheduleChannel) Send(_ context.Context, resp *Response) error {
	logger.Info("scheduled command finished", "job", resp.ReplyTo, "reply", resp.Text)
	return nil
}

func (s *ScheduleChannel) Messages() <-chan *Message {
	return s.messages
}

// Jobs lists what is currently scheduled.
func (s *ScheduleChannel) Jobs() []cron.Job {
	return s.sched.Jobs()
}

func (s *ScheduleChannel) fire(job cron.Job) {
	msg := &Message{
		ID:        fmt.Sprintf("schedule-%d", s.msgID.Add(1)),
		ChannelID: "schedule:" + job.ID,
		UserID:    job.ID,
		Username:  "schedule",
		Text:      job.Command,
		Metadata:  map[string]string{MetaJobID: job.ID, MetaReplyTo: job.ID},
	}
	select {
	case s.messages <- msg:
	case <-s.done:
	default:
		logger.Warn("schedule backlog full, run skipped", "job", job.ID)
	}
}
