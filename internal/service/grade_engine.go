package service

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/noah-isme/repota/internal/models"
)

// aggregateSubjectCount is how many subjects make up a JHS/SHS aggregate.
const aggregateSubjectCount = 6

// ProcessStudent grades every subject of the record and computes the student
// totals. It never fails: a record without subjects averages 0 and an unknown
// level grades every subject with the invalid-level sentinel.
func ProcessStudent(record models.StudentRecord, level models.SchoolLevel) models.ProcessedStudent {
	processed := models.ProcessedStudent{
		StudentRecord: record.Clone(),
		Subjects:      make([]models.ProcessedSubject, 0, len(record.Subjects)),
	}

	total := 0.0
	for _, subject := range processed.StudentRecord.Subjects {
		subjectTotal := round2(subject.ClassScore + subject.ExamScore)
		result := GradeFor(subjectTotal, level)
		processed.Subjects = append(processed.Subjects, models.ProcessedSubject{
			SavedSubject: subject,
			TotalScore:   subjectTotal,
			Grade:        result.Grade,
			Remark:       result.Remark,
		})
		total += subjectTotal
	}

	processed.TotalScore = round2(total)
	if n := len(processed.Subjects); n > 0 {
		processed.AverageScore = round2(total / float64(n))
	}
	return processed
}

// ClassScoreFromComponents rolls SBA components up into a class score scaled
// to classScoreMax and rounded to a whole mark.
func ClassScoreFromComponents(components []models.ClassScoreComponent, classScoreMax float64) float64 {
	var score, max float64
	for _, component := range components {
		score += component.Score
		max += component.MaxScore
	}
	if max <= 0 {
		return 0
	}
	return math.Round(score / max * classScoreMax)
}

// withDerivedClassScores returns a copy of record whose component-based
// subjects carry the class score their components give at classScoreMax.
func withDerivedClassScores(record models.StudentRecord, classScoreMax float64) models.StudentRecord {
	record = record.Clone()
	for i, subject := range record.Subjects {
		if subject.UsesComponents() {
			record.Subjects[i].ClassScore = ClassScoreFromComponents(subject.ClassScoreComponents, classScoreMax)
		}
	}
	return record
}

// ComputeAggregate sums grade points over the core subjects the student takes
// plus their best remaining subjects, six subjects in all. Lower is better.
// Only JHS and SHS report an aggregate.
func ComputeAggregate(subjects []models.ProcessedSubject, level models.SchoolLevel, coreSubjects []string) *int {
	if level != models.LevelJHS && level != models.LevelSHS {
		return nil
	}
	if len(subjects) == 0 {
		return nil
	}

	cores := make(map[string]bool, len(coreSubjects))
	for _, name := range coreSubjects {
		cores[normalizeSubjectName(name)] = true
	}

	var corePoints, electivePoints []int
	for _, subject := range subjects {
		points, ok := gradePoints(subject.Grade, level)
		if !ok {
			continue
		}
		if cores[normalizeSubjectName(subject.Name)] {
			corePoints = append(corePoints, points)
		} else {
			electivePoints = append(electivePoints, points)
		}
	}
	sort.Ints(corePoints)
	sort.Ints(electivePoints)

	picked := make([]int, 0, aggregateSubjectCount)
	picked = append(picked, corePoints...)
	picked = append(picked, electivePoints...)
	if len(picked) > aggregateSubjectCount {
		picked = picked[:aggregateSubjectCount]
	}
	if len(picked) == 0 {
		return nil
	}

	sum := 0
	for _, p := range picked {
		sum += p
	}
	return &sum
}

// AgeOn returns the age in whole years on asOf for a YYYY-MM-DD birth date.
func AgeOn(dateOfBirth string, asOf time.Time) *int {
	if strings.TrimSpace(dateOfBirth) == "" {
		return nil
	}
	dob, err := time.Parse("2006-01-02", strings.TrimSpace(dateOfBirth))
	if err != nil || dob.After(asOf) {
		return nil
	}
	age := asOf.Year() - dob.Year()
	if asOf.Month() < dob.Month() || (asOf.Month() == dob.Month() && asOf.Day() < dob.Day()) {
		age--
	}
	return &age
}

// BuildClassView derives the ranked report for one class from the
// authoritative records. Component-based class scores are taken from their
// components at the current class score maximum. Nothing it returns is stored.
func BuildClassView(records []models.StudentRecord, settings models.SchoolSettings, className string, asOf time.Time) models.ClassView {
	students := make([]models.ProcessedStudent, 0, len(records))
	for _, record := range records {
		if !sameClass(record.ClassName, className) {
			continue
		}
		processed := ProcessStudent(withDerivedClassScores(record, settings.ClassScoreMax), settings.Level)
		processed.Age = AgeOn(record.DateOfBirth, asOf)
		processed.Aggregate = ComputeAggregate(processed.Subjects, settings.Level, settings.CoreSubjects)
		students = append(students, processed)
	}

	students = AssignSubjectPositions(students)
	students = AssignPositions(students)

	return models.ClassView{ClassName: className, Level: settings.Level, Students: students}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func sameClass(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func normalizeSubjectName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
