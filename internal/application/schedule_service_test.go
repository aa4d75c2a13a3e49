package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/study-scheduler/internal/persistence"
)

type scheduleRepoStub struct {
	schedules map[string]Schedule
	problems  map[string][]AssignedProblem

	occupiedDays map[string]string

	created         Schedule
	createdProblems []int64
	createErr       error

	updated        Schedule
	updatedAdded   []int64
	updatedRemoved []int64

	marked map[int64]bool

	deletedID string
}

func newScheduleRepoStub() *scheduleRepoStub {
	return &scheduleRepoStub{
		schedules:    make(map[string]Schedule),
		problems:     make(map[string][]AssignedProblem),
		occupiedDays: make(map[string]string),
		marked:       make(map[int64]bool),
	}
}

func (s *scheduleRepoStub) add(schedule Schedule, problems ...AssignedProblem) {
	s.schedules[schedule.ID] = schedule
	s.problems[schedule.ID] = problems
	s.occupiedDays[schedule.StudyID+"|"+schedule.StartedAt.UTC().Format("2006-01-02")] = schedule.ID
}

func (s *scheduleRepoStub) CreateSchedule(ctx context.Context, schedule Schedule, problemNumbers []int64) (Schedule, error) {
	if s.createErr != nil {
		return Schedule{}, s.createErr
	}
	s.created = schedule
	s.createdProblems = problemNumbers
	s.schedules[schedule.ID] = schedule
	return schedule, nil
}

func (s *scheduleRepoStub) GetSchedule(ctx context.Context, id string) (Schedule, error) {
	schedule, ok := s.schedules[id]
	if !ok {
		return Schedule{}, persistence.ErrNotFound
	}
	return schedule, nil
}

func (s *scheduleRepoStub) ExistsOnDay(ctx context.Context, studyID string, day time.Time, excludeScheduleID string) (bool, error) {
	id, ok := s.occupiedDays[studyID+"|"+day.UTC().Format("2006-01-02")]
	if !ok {
		return false, nil
	}
	if excludeScheduleID != "" && id == excludeScheduleID {
		return false, nil
	}
	return true, nil
}

func (s *scheduleRepoStub) UpdateSchedule(ctx context.Context, schedule Schedule, addedProblems []int64, removedProblems []int64) (Schedule, error) {
	if _, ok := s.schedules[schedule.ID]; !ok {
		return Schedule{}, persistence.ErrNotFound
	}
	s.updated = schedule
	s.updatedAdded = addedProblems
	s.updatedRemoved = removedProblems
	s.schedules[schedule.ID] = schedule
	return schedule, nil
}

func (s *scheduleRepoStub) ListProblems(ctx context.Context, scheduleID string) ([]AssignedProblem, error) {
	return s.problems[scheduleID], nil
}

func (s *scheduleRepoStub) SetProblemSolved(ctx context.Context, scheduleID string, problemNumber int64, solved bool) error {
	s.marked[problemNumber] = solved
	return nil
}

func (s *scheduleRepoStub) ListSchedulesInRange(ctx context.Context, studyID string, from, to time.Time) ([]Schedule, error) {
	var out []Schedule
	for _, schedule := range s.schedules {
		if schedule.StudyID != studyID {
			continue
		}
		if schedule.StartedAt.Before(from) || !schedule.StartedAt.Before(to) {
			continue
		}
		out = append(out, schedule)
	}
	return out, nil
}

func (s *scheduleRepoStub) DeleteSchedule(ctx context.Context, id string) error {
	if _, ok := s.schedules[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.schedules, id)
	s.deletedID = id
	return nil
}

type submissionRepoStub struct {
	created  Submission
	passedBy map[int64][]string
}

func (s *submissionRepoStub) CreateSubmission(ctx context.Context, submission Submission) (Submission, error) {
	s.created = submission
	return submission, nil
}

func (s *submissionRepoStub) PassedProblemUsers(ctx context.Context, problemNumbers []int64, userIDs []string) (map[int64][]string, error) {
	return s.passedBy, nil
}

func TestScheduleService_CreateSchedule(t *testing.T) {
	now := time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC)
	start := time.Date(2024, time.June, 10, 19, 0, 0, 0, time.UTC)
	membership := Membership{UserID: "user-1", StudyID: "study-1"}

	t.Run("rejects non-members", func(t *testing.T) {
		svc := NewScheduleService(newScheduleRepoStub(), &submissionRepoStub{}, newMembershipRepoStub(), newUserDirectoryStub(), nil, fixedClock(now))

		_, err := svc.CreateSchedule(context.Background(), CreateScheduleParams{
			Principal: Principal{UserID: "outsider"},
			StudyID:   "study-1",
			Input:     ScheduleInput{StartedAt: start, FinishedAt: start.Add(2 * time.Hour)},
		})
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("validates the time window", func(t *testing.T) {
		svc := NewScheduleService(newScheduleRepoStub(), &submissionRepoStub{}, newMembershipRepoStub(membership), newUserDirectoryStub(), nil, fixedClock(now))

		_, err := svc.CreateSchedule(context.Background(), CreateScheduleParams{
			Principal: Principal{UserID: "user-1"},
			StudyID:   "study-1",
			Input:     ScheduleInput{StartedAt: start, FinishedAt: start.Add(-time.Hour)},
		})
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		if _, ok := vErr.FieldErrors["finishedAt"]; !ok {
			t.Fatalf("expected finishedAt validation error, got %v", vErr.FieldErrors)
		}
	})

	t.Run("rejects a second schedule on the same day", func(t *testing.T) {
		schedules := newScheduleRepoStub()
		schedules.add(Schedule{ID: "sched-0", StudyID: "study-1", StartedAt: start.Add(-3 * time.Hour)})
		svc := NewScheduleService(schedules, &submissionRepoStub{}, newMembershipRepoStub(membership), newUserDirectoryStub(), nil, fixedClock(now))

		_, err := svc.CreateSchedule(context.Background(), CreateScheduleParams{
			Principal: Principal{UserID: "user-1"},
			StudyID:   "study-1",
			Input:     ScheduleInput{StartedAt: start, FinishedAt: start.Add(2 * time.Hour)},
		})
		if !errors.Is(err, ErrScheduleConflict) {
			t.Fatalf("expected ErrScheduleConflict, got %v", err)
		}
	})

	t.Run("maps a constraint race to a conflict", func(t *testing.T) {
		schedules := newScheduleRepoStub()
		schedules.createErr = persistence.ErrDuplicate
		svc := NewScheduleService(schedules, &submissionRepoStub{}, newMembershipRepoStub(membership), newUserDirectoryStub(), func() string { return "sched-1" }, fixedClock(now))

		_, err := svc.CreateSchedule(context.Background(), CreateScheduleParams{
			Principal: Principal{UserID: "user-1"},
			StudyID:   "study-1",
			Input:     ScheduleInput{StartedAt: start, FinishedAt: start.Add(2 * time.Hour)},
		})
		if !errors.Is(err, ErrScheduleConflict) {
			t.Fatalf("expected ErrScheduleConflict, got %v", err)
		}
	})

	t.Run("persists schedule with de-duplicated problems", func(t *testing.T) {
		schedules := newScheduleRepoStub()
		svc := NewScheduleService(schedules, &submissionRepoStub{}, newMembershipRepoStub(membership), newUserDirectoryStub(), func() string { return "sched-1" }, fixedClock(now))

		created, err := svc.CreateSchedule(context.Background(), CreateScheduleParams{
			Principal: Principal{UserID: "user-1"},
			StudyID:   "study-1",
			Input: ScheduleInput{
				StartedAt:      start,
				FinishedAt:     start.Add(2 * time.Hour),
				ProblemNumbers: []int64{1003, 1000, 1003},
			},
		})
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if created.ID != "sched-1" {
			t.Fatalf("expected generated ID, got %q", created.ID)
		}
		if len(schedules.createdProblems) != 2 || schedules.createdProblems[0] != 1000 || schedules.createdProblems[1] != 1003 {
			t.Fatalf("expected sorted unique problems, got %v", schedules.createdProblems)
		}
	})
}

func TestScheduleService_UpdateSchedule(t *testing.T) {
	now := time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC)
	start := time.Date(2024, time.June, 10, 19, 0, 0, 0, time.UTC)
	roomMaker := Membership{UserID: "user-1", StudyID: "study-1", IsRoomMaker: true}

	t.Run("rejects plain members", func(t *testing.T) {
		schedules := newScheduleRepoStub()
		schedules.add(Schedule{ID: "sched-1", StudyID: "study-1", StartedAt: start})
		svc := NewScheduleService(schedules, &submissionRepoStub{}, newMembershipRepoStub(Membership{UserID: "user-2", StudyID: "study-1"}), newUserDirectoryStub(), nil, fixedClock(now))

		_, err := svc.UpdateSchedule(context.Background(), UpdateScheduleParams{
			Principal:  Principal{UserID: "user-2"},
			StudyID:    "study-1",
			ScheduleID: "sched-1",
			Input:      ScheduleInput{StartedAt: start, FinishedAt: start.Add(time.Hour)},
		})
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("keeping the same day does not conflict with itself", func(t *testing.T) {
		schedules := newScheduleRepoStub()
		schedules.add(Schedule{ID: "sched-1", StudyID: "study-1", StartedAt: start})
		svc := NewScheduleService(schedules, &submissionRepoStub{}, newMembershipRepoStub(roomMaker), newUserDirectoryStub(), nil, fixedClock(now))

		updated, err := svc.UpdateSchedule(context.Background(), UpdateScheduleParams{
			Principal:  Principal{UserID: "user-1"},
			StudyID:    "study-1",
			ScheduleID: "sched-1",
			Input:      ScheduleInput{StartedAt: start.Add(time.Hour), FinishedAt: start.Add(3 * time.Hour)},
		})
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if !updated.StartedAt.Equal(start.Add(time.Hour)) {
			t.Fatalf("unexpected start %v", updated.StartedAt)
		}
	})

	t.Run("moving onto an occupied day conflicts", func(t *testing.T) {
		schedules := newScheduleRepoStub()
		schedules.add(Schedule{ID: "sched-1", StudyID: "study-1", StartedAt: start})
		schedules.add(Schedule{ID: "sched-2", StudyID: "study-1", StartedAt: start.AddDate(0, 0, 1)})
		svc := NewScheduleService(schedules, &submissionRepoStub{}, newMembershipRepoStub(roomMaker), newUserDirectoryStub(), nil, fixedClock(now))

		_, err := svc.UpdateSchedule(context.Background(), UpdateScheduleParams{
			Principal:  Principal{UserID: "user-1"},
			StudyID:    "study-1",
			ScheduleID: "sched-1",
			Input:      ScheduleInput{StartedAt: start.AddDate(0, 0, 1), FinishedAt: start.AddDate(0, 0, 1).Add(time.Hour)},
		})
		if !errors.Is(err, ErrScheduleConflict) {
			t.Fatalf("expected ErrScheduleConflict, got %v", err)
		}
	})

	t.Run("reconciles the problem set preserving solved flags", func(t *testing.T) {
		schedules := newScheduleRepoStub()
		schedules.add(Schedule{ID: "sched-1", StudyID: "study-1", StartedAt: start},
			AssignedProblem{ProblemNumber: 1000, IsSolved: true},
			AssignedProblem{ProblemNumber: 1001},
		)
		svc := NewScheduleService(schedules, &submissionRepoStub{}, newMembershipRepoStub(roomMaker), newUserDirectoryStub(), nil, fixedClock(now))

		_, err := svc.UpdateSchedule(context.Background(), UpdateScheduleParams{
			Principal:  Principal{UserID: "user-1"},
			StudyID:    "study-1",
			ScheduleID: "sched-1",
			Input: ScheduleInput{
				StartedAt:      start,
				FinishedAt:     start.Add(2 * time.Hour),
				ProblemNumbers: []int64{1000, 1002},
			},
		})
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if len(schedules.updatedAdded) != 1 || schedules.updatedAdded[0] != 1002 {
			t.Fatalf("expected only 1002 to be added, got %v", schedules.updatedAdded)
		}
		if len(schedules.updatedRemoved) != 1 || schedules.updatedRemoved[0] != 1001 {
			t.Fatalf("expected only 1001 to be removed, got %v", schedules.updatedRemoved)
		}
	})

	t.Run("rejects a schedule from a different study", func(t *testing.T) {
		schedules := newScheduleRepoStub()
		schedules.add(Schedule{ID: "sched-1", StudyID: "study-other", StartedAt: start})
		svc := NewScheduleService(schedules, &submissionRepoStub{}, newMembershipRepoStub(roomMaker), newUserDirectoryStub(), nil, fixedClock(now))

		_, err := svc.UpdateSchedule(context.Background(), UpdateScheduleParams{
			Principal:  Principal{UserID: "user-1"},
			StudyID:    "study-1",
			ScheduleID: "sched-1",
			Input:      ScheduleInput{StartedAt: start, FinishedAt: start.Add(time.Hour)},
		})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestScheduleService_GetSchedule(t *testing.T) {
	now := time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC)
	start := time.Date(2024, time.June, 10, 19, 0, 0, 0, time.UTC)

	schedules := newScheduleRepoStub()
	schedules.add(Schedule{ID: "sched-1", StudyID: "study-1", StartedAt: start},
		AssignedProblem{ProblemNumber: 1000, IsSolved: true},
		AssignedProblem{ProblemNumber: 1001},
	)
	memberships := newMembershipRepoStub(
		Membership{UserID: "user-1", StudyID: "study-1"},
		Membership{UserID: "user-2", StudyID: "study-1"},
	)
	users := newUserDirectoryStub(
		User{ID: "user-1", Username: "alice"},
		User{ID: "user-2", Username: "bob"},
	)
	submissions := &submissionRepoStub{passedBy: map[int64][]string{
		1000: {"user-2", "user-1"},
	}}
	svc := NewScheduleService(schedules, submissions, memberships, users, nil, fixedClock(now))

	detail, err := svc.GetSchedule(context.Background(), Principal{UserID: "user-1"}, "study-1", "sched-1")
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(detail.Problems) != 2 {
		t.Fatalf("expected 2 problems, got %d", len(detail.Problems))
	}
	first := detail.Problems[0]
	if first.ProblemNumber != 1000 || !first.IsSolved {
		t.Fatalf("unexpected first problem %+v", first)
	}
	if len(first.SolvedMembers) != 2 || first.SolvedMembers[0] != "alice" || first.SolvedMembers[1] != "bob" {
		t.Fatalf("expected sorted solver usernames, got %v", first.SolvedMembers)
	}
	if len(detail.Problems[1].SolvedMembers) != 0 {
		t.Fatalf("expected no solvers for 1001, got %v", detail.Problems[1].SolvedMembers)
	}
}

func TestScheduleService_GetTodaySchedule(t *testing.T) {
	now := time.Date(2024, time.June, 10, 9, 0, 0, 0, time.UTC)
	membership := Membership{UserID: "user-1", StudyID: "study-1"}

	t.Run("returns the schedule occupying today", func(t *testing.T) {
		schedules := newScheduleRepoStub()
		schedules.add(Schedule{ID: "sched-1", StudyID: "study-1", StartedAt: now.Add(10 * time.Hour)})
		svc := NewScheduleService(schedules, &submissionRepoStub{}, newMembershipRepoStub(membership), newUserDirectoryStub(), nil, fixedClock(now))

		detail, err := svc.GetTodaySchedule(context.Background(), Principal{UserID: "user-1"}, "study-1")
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if detail.Schedule.ID != "sched-1" {
			t.Fatalf("unexpected schedule %+v", detail.Schedule)
		}
	})

	t.Run("reports not found on an empty day", func(t *testing.T) {
		schedules := newScheduleRepoStub()
		schedules.add(Schedule{ID: "sched-1", StudyID: "study-1", StartedAt: now.AddDate(0, 0, 2)})
		svc := NewScheduleService(schedules, &submissionRepoStub{}, newMembershipRepoStub(membership), newUserDirectoryStub(), nil, fixedClock(now))

		_, err := svc.GetTodaySchedule(context.Background(), Principal{UserID: "user-1"}, "study-1")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestScheduleService_ListSchedules(t *testing.T) {
	now := time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC)
	membership := Membership{UserID: "user-1", StudyID: "study-1"}

	t.Run("month view covers the six-week grid", func(t *testing.T) {
		schedules := newScheduleRepoStub()
		// May 26 2024 is the Sunday opening June's grid.
		schedules.add(Schedule{ID: "sched-may", StudyID: "study-1", StartedAt: time.Date(2024, time.May, 27, 10, 0, 0, 0, time.UTC)})
		schedules.add(Schedule{ID: "sched-june", StudyID: "study-1", StartedAt: time.Date(2024, time.June, 15, 10, 0, 0, 0, time.UTC)})
		schedules.add(Schedule{ID: "sched-aug", StudyID: "study-1", StartedAt: time.Date(2024, time.August, 15, 10, 0, 0, 0, time.UTC)})
		svc := NewScheduleService(schedules, &submissionRepoStub{}, newMembershipRepoStub(membership), newUserDirectoryStub(), nil, fixedClock(now))

		page, err := svc.ListSchedules(context.Background(), ListSchedulesParams{
			Principal: Principal{UserID: "user-1"},
			StudyID:   "study-1",
			Year:      2024,
			Month:     time.June,
		})
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if !page.From.Equal(time.Date(2024, time.May, 26, 0, 0, 0, 0, time.UTC)) {
			t.Fatalf("unexpected grid start %v", page.From)
		}
		if !page.To.Equal(page.From.AddDate(0, 0, 42)) {
			t.Fatalf("expected a 42-day grid, got %v", page.To)
		}
		if len(page.Schedules) != 2 {
			t.Fatalf("expected 2 schedules inside the grid, got %d", len(page.Schedules))
		}
		if page.Schedules[0].ID != "sched-may" {
			t.Fatalf("expected chronological order, got %v", page.Schedules)
		}
	})

	t.Run("week view anchors to Sunday", func(t *testing.T) {
		schedules := newScheduleRepoStub()
		schedules.add(Schedule{ID: "sched-wed", StudyID: "study-1", StartedAt: time.Date(2024, time.June, 12, 10, 0, 0, 0, time.UTC)})
		schedules.add(Schedule{ID: "sched-next", StudyID: "study-1", StartedAt: time.Date(2024, time.June, 19, 10, 0, 0, 0, time.UTC)})
		svc := NewScheduleService(schedules, &submissionRepoStub{}, newMembershipRepoStub(membership), newUserDirectoryStub(), nil, fixedClock(now))

		page, err := svc.ListSchedules(context.Background(), ListSchedulesParams{
			Principal: Principal{UserID: "user-1"},
			StudyID:   "study-1",
			Year:      2024,
			Month:     time.June,
			Day:       12,
		})
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if !page.From.Equal(time.Date(2024, time.June, 9, 0, 0, 0, 0, time.UTC)) {
			t.Fatalf("unexpected week start %v", page.From)
		}
		if len(page.Schedules) != 1 || page.Schedules[0].ID != "sched-wed" {
			t.Fatalf("expected only the in-week schedule, got %v", page.Schedules)
		}
	})
}

func TestScheduleService_MarkProblemSolved(t *testing.T) {
	now := time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC)
	start := time.Date(2024, time.June, 10, 19, 0, 0, 0, time.UTC)

	schedules := newScheduleRepoStub()
	schedules.add(Schedule{ID: "sched-1", StudyID: "study-1", StartedAt: start}, AssignedProblem{ProblemNumber: 1000})
	memberships := newMembershipRepoStub(Membership{UserID: "user-2", StudyID: "study-1"})
	svc := NewScheduleService(schedules, &submissionRepoStub{}, memberships, newUserDirectoryStub(), nil, fixedClock(now))

	if err := svc.MarkProblemSolved(context.Background(), Principal{UserID: "user-2"}, "study-1", "sched-1", 1000, true); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if !schedules.marked[1000] {
		t.Fatalf("expected problem 1000 to be marked solved")
	}

	err := svc.MarkProblemSolved(context.Background(), Principal{UserID: "stranger"}, "study-1", "sched-1", 1000, true)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestScheduleService_RecordSubmission(t *testing.T) {
	now := time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC)
	submissions := &submissionRepoStub{}
	svc := NewScheduleService(newScheduleRepoStub(), submissions, newMembershipRepoStub(), newUserDirectoryStub(), func() string { return "sub-1" }, fixedClock(now))

	recorded, err := svc.RecordSubmission(context.Background(), Principal{UserID: "user-1"}, 1000, true)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if recorded.ID != "sub-1" || !recorded.Passed || recorded.ProblemNumber != 1000 {
		t.Fatalf("unexpected submission %+v", recorded)
	}
	if !submissions.created.SubmittedAt.Equal(now) {
		t.Fatalf("expected timestamp from injected clock, got %v", submissions.created.SubmittedAt)
	}

	_, err = svc.RecordSubmission(context.Background(), Principal{UserID: "user-1"}, 0, true)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestScheduleService_DeleteSchedule(t *testing.T) {
	now := time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC)
	start := time.Date(2024, time.June, 10, 19, 0, 0, 0, time.UTC)

	t.Run("room maker deletes", func(t *testing.T) {
		schedules := newScheduleRepoStub()
		schedules.add(Schedule{ID: "sched-1", StudyID: "study-1", StartedAt: start})
		memberships := newMembershipRepoStub(Membership{UserID: "user-1", StudyID: "study-1", IsRoomMaker: true})
		svc := NewScheduleService(schedules, &submissionRepoStub{}, memberships, newUserDirectoryStub(), nil, fixedClock(now))

		if err := svc.DeleteSchedule(context.Background(), Principal{UserID: "user-1"}, "study-1", "sched-1"); err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if schedules.deletedID != "sched-1" {
			t.Fatalf("expected deletion of sched-1, got %q", schedules.deletedID)
		}
	})

	t.Run("plain members cannot delete", func(t *testing.T) {
		schedules := newScheduleRepoStub()
		schedules.add(Schedule{ID: "sched-1", StudyID: "study-1", StartedAt: start})
		memberships := newMembershipRepoStub(Membership{UserID: "user-2", StudyID: "study-1"})
		svc := NewScheduleService(schedules, &submissionRepoStub{}, memberships, newUserDirectoryStub(), nil, fixedClock(now))

		err := svc.DeleteSchedule(context.Background(), Principal{UserID: "user-2"}, "study-1", "sched-1")
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})
}
