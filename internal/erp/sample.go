package erp

import (
	"fmt"
	"time"

	"registration-verifier/internal/models"
)

// SampleDirectory returns the deterministic directory served by the mock
// client in dev mode. Staff numbers S100-S149 are active employees; S150
// has left, S151 is suspended.
func SampleDirectory() []models.EmployeeRecord {
	hired := time.Date(2020, time.March, 1, 0, 0, 0, 0, time.UTC)
	records := make([]models.EmployeeRecord, 0, 52)
	for i := 0; i < 50; i++ {
		records = append(records, models.EmployeeRecord{
			StaffNumber:      fmt.Sprintf("S%d", 100+i),
			Name:             fmt.Sprintf("Employee %d", 100+i),
			Department:       "Engineering",
			EmploymentStatus: models.EmploymentActive,
			HiredAt:          hired,
		})
	}
	left := time.Date(2023, time.June, 30, 0, 0, 0, 0, time.UTC)
	records = append(records,
		models.EmployeeRecord{
			StaffNumber:      "S150",
			Name:             "Former Employee",
			Department:       "Engineering",
			EmploymentStatus: "terminated",
			HiredAt:          hired,
			LeftAt:           &left,
		},
		models.EmployeeRecord{
			StaffNumber:      "S151",
			Name:             "Suspended Employee",
			Department:       "Finance",
			EmploymentStatus: "suspended",
			HiredAt:          hired,
		},
	)
	return records
}
