package service

import "github.com/noah-isme/repota/internal/models"

// GradeBand is one tier of a level's banding table. A total lands in the
// first band (highest Min first) whose Min it reaches.
type GradeBand struct {
	Min    float64 `json:"min"`
	Grade  string  `json:"grade"`
	Remark string  `json:"remark"`
	Points int     `json:"points"`
}

// GradeResult is the grade and remark for one subject total.
type GradeResult struct {
	Grade  string `json:"grade"`
	Remark string `json:"remark"`
}

// Returned for a level with no table.
const (
	InvalidLevelGrade  = "F"
	InvalidLevelRemark = "Invalid Level"
)

var gradeBandTables = map[models.SchoolLevel][]GradeBand{
	models.LevelKG: {
		{Min: 80, Grade: "A", Remark: "Excellent", Points: 1},
		{Min: 50, Grade: "B", Remark: "Good", Points: 2},
		{Min: 0, Grade: "C", Remark: "Needs Improvement", Points: 3},
	},
	models.LevelPrimary: {
		{Min: 80, Grade: "A", Remark: "Highly Proficient", Points: 1},
		{Min: 70, Grade: "B", Remark: "Proficient", Points: 2},
		{Min: 60, Grade: "C", Remark: "Approaching Proficiency", Points: 3},
		{Min: 50, Grade: "D", Remark: "Developing", Points: 4},
		{Min: 0, Grade: "E", Remark: "Beginning", Points: 5},
	},
	models.LevelJHS: {
		{Min: 90, Grade: "1", Remark: "Highest", Points: 1},
		{Min: 80, Grade: "2", Remark: "Higher", Points: 2},
		{Min: 70, Grade: "3", Remark: "High", Points: 3},
		{Min: 60, Grade: "4", Remark: "High Average", Points: 4},
		{Min: 55, Grade: "5", Remark: "Average", Points: 5},
		{Min: 50, Grade: "6", Remark: "Low Average", Points: 6},
		{Min: 40, Grade: "7", Remark: "Low", Points: 7},
		{Min: 35, Grade: "8", Remark: "Lower", Points: 8},
		{Min: 0, Grade: "9", Remark: "Lowest", Points: 9},
	},
	models.LevelSHS: {
		{Min: 80, Grade: "A1", Remark: "Excellent", Points: 1},
		{Min: 70, Grade: "B2", Remark: "Very Good", Points: 2},
		{Min: 65, Grade: "B3", Remark: "Good", Points: 3},
		{Min: 60, Grade: "C4", Remark: "Credit", Points: 4},
		{Min: 55, Grade: "C5", Remark: "Credit", Points: 5},
		{Min: 50, Grade: "C6", Remark: "Credit", Points: 6},
		{Min: 45, Grade: "D7", Remark: "Pass", Points: 7},
		{Min: 40, Grade: "E8", Remark: "Pass", Points: 8},
		{Min: 0, Grade: "F9", Remark: "Fail", Points: 9},
	},
}

// GradeBands returns a copy of the level's table, or nil for an unknown level.
func GradeBands(level models.SchoolLevel) []GradeBand {
	table, ok := gradeBandTables[level]
	if !ok {
		return nil
	}
	return append([]GradeBand(nil), table...)
}

// GradeFor bands a subject total. Totals above 100 land in the top tier and
// totals below zero in the bottom one; an unknown level yields the
// InvalidLevelGrade sentinel instead of an error.
func GradeFor(total float64, level models.SchoolLevel) GradeResult {
	band, ok := bandFor(total, level)
	if !ok {
		return GradeResult{Grade: InvalidLevelGrade, Remark: InvalidLevelRemark}
	}
	return GradeResult{Grade: band.Grade, Remark: band.Remark}
}

func bandFor(total float64, level models.SchoolLevel) (GradeBand, bool) {
	table, ok := gradeBandTables[level]
	if !ok || len(table) == 0 {
		return GradeBand{}, false
	}
	for _, band := range table {
		if total >= band.Min {
			return band, true
		}
	}
	return table[len(table)-1], true
}

// gradePoints maps a grade back to its numeric points within a level.
func gradePoints(grade string, level models.SchoolLevel) (int, bool) {
	for _, band := range gradeBandTables[level] {
		if band.Grade == grade {
			return band.Points, true
		}
	}
	return 0, false
}
