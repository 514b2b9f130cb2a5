package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trucvy/vietschool/core/class"
	"github.com/trucvy/vietschool/core/schoolyear"
)

// seedPrograms lists the programs and their divisions loaded by `admin seed`.
var seedPrograms = []struct {
	name    string
	classes []string
}{
	{
		name: "TNTT (VEYM)",
		classes: []string{
			"Au Nhi Cap 1", "Au Nhi Cap 2", "Au Nhi Cap 3",
			"Thieu Nhi Cap 1", "Thieu Nhi Cap 2", "Thieu Nhi Cap 3",
			"Nghia Si Cap 1", "Nghia Si Cap 2", "Nghia Si Cap 3",
			"Hiep Si Cap 1", "Hiep Si Cap 2",
		},
	},
	{
		name: "Viet Ngu",
		classes: []string{
			"Grade 1", "Grade 2", "Grade 3", "Grade 4", "Grade 5",
			"Grade 6", "Grade 7", "Grade 8", "Grade 9",
		},
	},
	{
		name: "Giao Ly",
		classes: []string{
			"Grade 1", "Grade 2", "Grade 3", "Grade 4", "Grade 5",
			"Grade 6", "Grade 7", "Grade 8", "Grade 9",
		},
	},
}

// defaultYearLabel returns the label of the school year the clock falls in;
// years roll over on July 1st.
func defaultYearLabel() string {
	now := time.Now()
	start := now.Year()
	if now.Month() < time.July {
		start--
	}
	return schoolyear.YearLabel(start)
}

// seed loads the school year, programs and classes the school starts a year
// with. Existing records are left untouched so the command can be re-run.
func (cli *commandLine) seed(yearName string) error {
	ctx := context.Background()

	year, err := cli.yearRepo.GetSchoolYearByName(ctx, yearName)
	switch err {
	case nil:
		logger.Printf("year %s already exists", yearName)
	case schoolyear.ErrYearNotFound:
		logger.Printf("creating year %s", yearName)
		startYear, endYear := schoolyear.ParseYearLabel(yearName)
		transition := time.Date(startYear, time.July, 1, 0, 0, 0, 0, time.UTC)
		year, err = cli.yearRepo.CreateSchoolYear(ctx, schoolyear.SchoolYear{
			Name:           yearName,
			StartYear:      startYear,
			EndYear:        endYear,
			IsCurrent:      true,
			IsActive:       true,
			TransitionDate: &transition,
			CreatedAt:      time.Now().UTC(),
		})
		if err != nil {
			return errors.Wrap(err, "creating school year")
		}
	default:
		return errors.Wrap(err, "finding school year by name")
	}

	programs, err := cli.classRepo.QueryAllPrograms(ctx)
	if err != nil {
		return errors.Wrap(err, "querying programs")
	}
	programsByName := make(map[string]class.Program, len(programs))
	for _, prog := range programs {
		programsByName[prog.Name] = prog
	}

	classes, err := cli.classRepo.QueryClassesByYear(ctx, year.ID)
	if err != nil {
		return errors.Wrap(err, "querying classes")
	}
	classKey := func(programID int, name string) string {
		return fmt.Sprintf("%d/%s", programID, name)
	}
	existing := make(map[string]bool, len(classes))
	for _, cls := range classes {
		existing[classKey(cls.ProgramID, cls.Name)] = true
	}

	for _, sp := range seedPrograms {
		prog, ok := programsByName[sp.name]
		if !ok {
			logger.Printf("creating program %s", sp.name)
			if prog, err = cli.classRepo.CreateProgram(ctx, class.Program{Name: sp.name}); err != nil {
				return errors.Wrap(err, "creating program")
			}
			programsByName[prog.Name] = prog
		}

		for _, name := range sp.classes {
			if existing[classKey(prog.ID, name)] {
				continue
			}
			logger.Printf("adding class %s / %s", sp.name, name)
			if _, err = cli.classRepo.CreateClass(ctx, class.Class{
				Name:         name,
				ProgramID:    prog.ID,
				SchoolYearID: year.ID,
			}); err != nil {
				return errors.Wrap(err, "creating class")
			}
		}
	}
	return nil
}
