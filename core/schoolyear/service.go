package schoolyear

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/trucvy/vietschool/core"
)

var (
	// errors
	ErrNotFound     = errors.New("no school years configured")
	ErrYearNotFound = errors.New("school year not found")
	ErrNameExists   = errors.New("a school year with this name already exists")
	ErrHasClasses   = errors.New("cannot delete a school year that still has classes")
)

type (
	Repository interface {
		CreateSchoolYear(ctx context.Context, year SchoolYear) (SchoolYear, error)
		// QueryAllSchoolYears returns every year, newest first (start year
		// then id, both descending).
		QueryAllSchoolYears(ctx context.Context) ([]SchoolYear, error)
		GetSchoolYearByID(ctx context.Context, id int) (SchoolYear, error)
		GetSchoolYearByName(ctx context.Context, name string) (SchoolYear, error)
		UpdateSchoolYear(ctx context.Context, year SchoolYear) (SchoolYear, error)
		DeleteSchoolYear(ctx context.Context, id int) error
	}

	// StatsProvider supplies per-year class and enrollment counts; the class
	// repository implements it.
	StatsProvider interface {
		ClassCountForYear(ctx context.Context, yearID int) (int, error)
		EnrollmentCountForYear(ctx context.Context, yearID int) (int, error)
	}

	Service interface {
		Create(ctx context.Context, ny NewSchoolYear) (WithStats, error)
		// Query returns all years with stats, newest first; archived years
		// are skipped unless includeArchived.
		Query(ctx context.Context, includeArchived bool) ([]WithStats, error)
		GetByID(ctx context.Context, id int) (WithStats, error)
		// Newest returns the year with the highest start year; the parent
		// enrollment portal and admin dashboard default to it.
		Newest(ctx context.Context) (WithStats, error)
		// Active returns the explicitly active year, falling back to the
		// newest one.
		Active(ctx context.Context) (WithStats, error)
		Update(ctx context.Context, id int, uy UpdateSchoolYear) (WithStats, error)
		Transition(ctx context.Context, newActiveYearID int) (TransitionResult, error)
		Delete(ctx context.Context, id int) error
		CheckAutoCreate(ctx context.Context) (AutoCreateCheck, error)
		CheckTransition(ctx context.Context) (TransitionCheck, error)
	}

	service struct {
		conf    *core.Config
		repo    Repository
		stats   StatsProvider
		nowFunc func() time.Time // mockable
	}
)

var _ Service = (*service)(nil)

func NewService(conf *core.Config, repo Repository, stats StatsProvider) Service {
	return &service{
		conf:    conf,
		repo:    repo,
		stats:   stats,
		nowFunc: time.Now,
	}
}

func (svc *service) withStats(ctx context.Context, year SchoolYear) (WithStats, error) {
	ws := WithStats{
		SchoolYear: year,
		Status:     year.Status(svc.nowFunc()),
	}
	if svc.stats == nil {
		return ws, nil
	}
	var err error
	if ws.ClassCount, err = svc.stats.ClassCountForYear(ctx, year.ID); err != nil {
		return WithStats{}, errors.Wrap(err, "counting classes")
	}
	if ws.EnrolledStudentsCount, err = svc.stats.EnrollmentCountForYear(ctx, year.ID); err != nil {
		return WithStats{}, errors.Wrap(err, "counting enrollments")
	}
	return ws, nil
}

func (svc *service) Create(ctx context.Context, ny NewSchoolYear) (WithStats, error) {
	startYear, endYear := ny.StartYear, ny.EndYear
	if startYear == 0 || endYear == 0 {
		parsedStart, parsedEnd := ParseYearLabel(ny.Name)
		if startYear == 0 {
			startYear = parsedStart
		}
		if endYear == 0 {
			endYear = parsedEnd
		}
	}

	transitionDate := ny.TransitionDate
	if transitionDate == nil && startYear != 0 {
		td := time.Date(startYear, time.July, 1, 0, 0, 0, 0, time.UTC)
		transitionDate = &td
	}

	if _, err := svc.repo.GetSchoolYearByName(ctx, ny.Name); err == nil {
		return WithStats{}, core.NewValidationError(ErrNameExists,
			core.FieldError{Field: "name", Error: ErrNameExists.Error()})
	} else if errors.Cause(err) != ErrYearNotFound {
		return WithStats{}, errors.Wrap(err, "checking year name")
	}

	if ny.IsActive {
		if err := svc.deactivateOthers(ctx, 0); err != nil {
			return WithStats{}, err
		}
	}

	created, err := svc.repo.CreateSchoolYear(ctx, SchoolYear{
		Name:           ny.Name,
		StartYear:      startYear,
		EndYear:        endYear,
		IsCurrent:      ny.IsActive,
		IsActive:       ny.IsActive,
		EnrollmentOpen: ny.EnrollmentOpen,
		TransitionDate: transitionDate,
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		return WithStats{}, errors.Wrap(err, "creating school year")
	}
	return svc.withStats(ctx, created)
}

func (svc *service) Query(ctx context.Context, includeArchived bool) ([]WithStats, error) {
	years, err := svc.repo.QueryAllSchoolYears(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "querying school years")
	}
	sortYears(years)

	now := svc.nowFunc()
	result := make([]WithStats, 0, len(years))
	for _, year := range years {
		if year.Status(now) == StatusArchived && !includeArchived {
			continue
		}
		ws, err := svc.withStats(ctx, year)
		if err != nil {
			return nil, err
		}
		result = append(result, ws)
	}
	return result, nil
}

// newest first
func sortYears(years []SchoolYear) {
	sort.SliceStable(years, func(i, j int) bool {
		if years[i].StartYear != years[j].StartYear {
			return years[i].StartYear > years[j].StartYear
		}
		return years[i].ID > years[j].ID
	})
}

func (svc *service) GetByID(ctx context.Context, id int) (WithStats, error) {
	year, err := svc.repo.GetSchoolYearByID(ctx, id)
	if err != nil {
		return WithStats{}, err
	}
	return svc.withStats(ctx, year)
}

func (svc *service) Newest(ctx context.Context) (WithStats, error) {
	years, err := svc.repo.QueryAllSchoolYears(ctx)
	if err != nil {
		return WithStats{}, errors.Wrap(err, "querying school years")
	}
	if len(years) == 0 {
		return WithStats{}, ErrNotFound
	}
	sortYears(years)
	return svc.withStats(ctx, years[0])
}

func (svc *service) Active(ctx context.Context) (WithStats, error) {
	years, err := svc.repo.QueryAllSchoolYears(ctx)
	if err != nil {
		return WithStats{}, errors.Wrap(err, "querying school years")
	}
	if len(years) == 0 {
		return WithStats{}, ErrNotFound
	}
	for _, year := range years {
		if year.IsActive {
			return svc.withStats(ctx, year)
		}
	}
	sortYears(years)
	return svc.withStats(ctx, years[0])
}

func (svc *service) Update(ctx context.Context, id int, uy UpdateSchoolYear) (WithStats, error) {
	year, err := svc.repo.GetSchoolYearByID(ctx, id)
	if err != nil {
		return WithStats{}, err
	}

	if uy.Name != nil {
		year.Name = *uy.Name
	}
	if uy.StartYear != nil {
		year.StartYear = *uy.StartYear
	}
	if uy.EndYear != nil {
		year.EndYear = *uy.EndYear
	}
	if uy.EnrollmentOpen != nil {
		year.EnrollmentOpen = *uy.EnrollmentOpen
	}
	if uy.TransitionDate != nil {
		year.TransitionDate = uy.TransitionDate
	}
	if uy.IsActive != nil {
		if *uy.IsActive {
			if err = svc.deactivateOthers(ctx, id); err != nil {
				return WithStats{}, err
			}
		}
		year.IsActive = *uy.IsActive
		year.IsCurrent = *uy.IsActive
	}

	updated, err := svc.repo.UpdateSchoolYear(ctx, year)
	if err != nil {
		return WithStats{}, errors.Wrap(err, "updating school year")
	}
	return svc.withStats(ctx, updated)
}

// Transition makes another year the active one, archiving the previous
// active year.
func (svc *service) Transition(ctx context.Context, newActiveYearID int) (TransitionResult, error) {
	newYear, err := svc.repo.GetSchoolYearByID(ctx, newActiveYearID)
	if err != nil {
		return TransitionResult{}, err
	}

	var previousActiveID *int
	years, err := svc.repo.QueryAllSchoolYears(ctx)
	if err != nil {
		return TransitionResult{}, errors.Wrap(err, "querying school years")
	}
	for _, year := range years {
		if !year.IsActive || year.ID == newYear.ID {
			continue
		}
		id := year.ID
		previousActiveID = &id
		year.IsActive = false
		year.IsCurrent = false
		if _, err = svc.repo.UpdateSchoolYear(ctx, year); err != nil {
			return TransitionResult{}, errors.Wrap(err, "deactivating previous year")
		}
	}

	newYear.IsActive = true
	newYear.IsCurrent = true
	if _, err = svc.repo.UpdateSchoolYear(ctx, newYear); err != nil {
		return TransitionResult{}, errors.Wrap(err, "activating new year")
	}

	return TransitionResult{
		Success:              true,
		Message:              fmt.Sprintf("Successfully transitioned to %s", newYear.Name),
		PreviousActiveYearID: previousActiveID,
		NewActiveYearID:      newYear.ID,
	}, nil
}

func (svc *service) Delete(ctx context.Context, id int) error {
	if _, err := svc.repo.GetSchoolYearByID(ctx, id); err != nil {
		return err
	}
	if svc.stats != nil {
		count, err := svc.stats.ClassCountForYear(ctx, id)
		if err != nil {
			return errors.Wrap(err, "counting classes")
		}
		if count > 0 {
			return core.NewValidationError(ErrHasClasses,
				core.FieldError{Field: "id", Error: fmt.Sprintf(
					"cannot delete school year with %d associated classes; remove classes first", count)})
		}
	}
	return svc.repo.DeleteSchoolYear(ctx, id)
}

// CheckAutoCreate suggests creating next year's record during the configured
// window (January and February by default): in January 2026 the 2026-2027
// year should exist before enrollment opens.
func (svc *service) CheckAutoCreate(ctx context.Context) (AutoCreateCheck, error) {
	now := svc.nowFunc()
	month := now.Month()

	inWindow := false
	for _, m := range svc.conf.YearAutoCreateMonths {
		if month == m {
			inWindow = true
			break
		}
	}
	if !inWindow {
		return AutoCreateCheck{
			ShouldCreate: false,
			Reason:       "New year creation is only suggested in January-February",
			CurrentMonth: int(month),
		}, nil
	}

	label := YearLabel(now.Year())
	existing, err := svc.repo.GetSchoolYearByName(ctx, label)
	if err == nil {
		return AutoCreateCheck{
			ShouldCreate:   false,
			Reason:         fmt.Sprintf("School year %s already exists", label),
			ExistingYearID: existing.ID,
		}, nil
	}
	if errors.Cause(err) != ErrYearNotFound {
		return AutoCreateCheck{}, errors.Wrap(err, "checking year name")
	}

	return AutoCreateCheck{
		ShouldCreate:            true,
		Reason:                  fmt.Sprintf("School year %s does not exist and should be created", label),
		SuggestedName:           label,
		SuggestedStartYear:      now.Year(),
		SuggestedEndYear:        now.Year() + 1,
		SuggestedTransitionDate: fmt.Sprintf("%d-07-01", now.Year()),
	}, nil
}

// CheckTransition reports whether the newest inactive year's transition date
// has passed.
func (svc *service) CheckTransition(ctx context.Context) (TransitionCheck, error) {
	years, err := svc.repo.QueryAllSchoolYears(ctx)
	if err != nil {
		return TransitionCheck{}, errors.Wrap(err, "querying school years")
	}
	sortYears(years)

	var upcoming *SchoolYear
	for i := range years {
		if !years[i].IsActive && years[i].TransitionDate != nil {
			upcoming = &years[i]
			break
		}
	}
	if upcoming == nil {
		return TransitionCheck{
			ShouldTransition: false,
			Reason:           "No upcoming school year found with a transition date",
		}, nil
	}

	today := dateOnly(svc.nowFunc())
	td := dateOnly(*upcoming.TransitionDate)
	if !today.Before(td) {
		return TransitionCheck{
			ShouldTransition: true,
			YearID:           upcoming.ID,
			YearName:         upcoming.Name,
			TransitionDate:   td.Format("2006-01-02"),
			Reason:           fmt.Sprintf("Transition date (%s) has passed", td.Format("2006-01-02")),
		}, nil
	}

	days := int(td.Sub(today).Hours() / 24)
	return TransitionCheck{
		ShouldTransition:    false,
		Reason:              "Transition date has not yet passed",
		UpcomingYearID:      upcoming.ID,
		UpcomingYearName:    upcoming.Name,
		TransitionDate:      td.Format("2006-01-02"),
		DaysUntilTransition: &days,
	}, nil
}

func (svc *service) deactivateOthers(ctx context.Context, exceptID int) error {
	years, err := svc.repo.QueryAllSchoolYears(ctx)
	if err != nil {
		return errors.Wrap(err, "querying school years")
	}
	for _, year := range years {
		if !year.IsActive || year.ID == exceptID {
			continue
		}
		year.IsActive = false
		year.IsCurrent = false
		if _, err = svc.repo.UpdateSchoolYear(ctx, year); err != nil {
			return errors.Wrap(err, "deactivating school year")
		}
	}
	return nil
}
