package dummydb

import (
	"sync"

	"github.com/trucvy/vietschool/core/class"
	"github.com/trucvy/vietschool/core/family"
	"github.com/trucvy/vietschool/core/payment"
	"github.com/trucvy/vietschool/core/schoolyear"
	"github.com/trucvy/vietschool/core/user"
)

type (
	DB struct {
		user       *userTable
		family     *familyTable
		schoolYear *schoolYearTable
		class      *classTable
		payment    *paymentTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	familyTable struct {
		sync.RWMutex
		table map[string]*family.Family
	}

	schoolYearTable struct {
		sync.RWMutex
		table  map[int]*schoolyear.SchoolYear
		serial int
	}

	classTable struct {
		sync.RWMutex
		classes       map[string]*class.Class
		enrollments   map[string]*class.Enrollment
		programs      map[int]*class.Program
		programSerial int
	}

	paymentTable struct {
		sync.RWMutex
		table map[string]*payment.Payment
	}
)

func Open() (*DB, error) {
	db := &DB{
		user:       &userTable{table: make(map[string]*user.User)},
		family:     &familyTable{table: make(map[string]*family.Family)},
		schoolYear: &schoolYearTable{table: make(map[int]*schoolyear.SchoolYear)},
		class: &classTable{
			classes:     make(map[string]*class.Class),
			enrollments: make(map[string]*class.Enrollment),
			programs:    make(map[int]*class.Program),
		},
		payment: &paymentTable{table: make(map[string]*payment.Payment)},
	}
	return db, nil
}
