package service

import (
	"sort"
	"strconv"

	"github.com/noah-isme/repota/internal/models"
)

// AssignPositions orders students by average score, highest first, and writes
// each one's class position. Equal averages share a position and the next
// distinct average takes the following position, so [90, 80, 80, 70] ranks
// 1st, 2nd, 2nd, 3rd. The input slice is left untouched.
func AssignPositions(students []models.ProcessedStudent) []models.ProcessedStudent {
	ranked := append([]models.ProcessedStudent(nil), students...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].AverageScore > ranked[j].AverageScore
	})

	ranks := denseRanks(len(ranked), func(i int) float64 { return ranked[i].AverageScore })
	for i := range ranked {
		ranked[i].ClassPosition = Ordinal(ranks[i])
	}
	return ranked
}

// AssignSubjectPositions ranks students within each subject by the subject's
// total score, using the same shared-position rule as AssignPositions.
// Subjects are matched by name; students keep their original order.
func AssignSubjectPositions(students []models.ProcessedStudent) []models.ProcessedStudent {
	out := make([]models.ProcessedStudent, len(students))
	for i, student := range students {
		out[i] = student
		out[i].Subjects = append([]models.ProcessedSubject(nil), student.Subjects...)
	}

	type entry struct {
		student int
		subject int
		total   float64
	}
	bySubject := make(map[string][]entry)
	var order []string
	for si, student := range out {
		for ji, subject := range student.Subjects {
			key := normalizeSubjectName(subject.Name)
			if _, seen := bySubject[key]; !seen {
				order = append(order, key)
			}
			bySubject[key] = append(bySubject[key], entry{student: si, subject: ji, total: subject.TotalScore})
		}
	}

	for _, key := range order {
		entries := bySubject[key]
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].total > entries[j].total
		})
		ranks := denseRanks(len(entries), func(i int) float64 { return entries[i].total })
		for i, e := range entries {
			out[e.student].Subjects[e.subject].SubjectPosition = Ordinal(ranks[i])
		}
	}
	return out
}

// denseRanks assigns ranks to n values already sorted in descending order.
func denseRanks(n int, value func(i int) float64) []int {
	ranks := make([]int, n)
	for i := 0; i < n; i++ {
		switch {
		case i == 0:
			ranks[i] = 1
		case value(i) == value(i-1):
			ranks[i] = ranks[i-1]
		default:
			ranks[i] = ranks[i-1] + 1
		}
	}
	return ranks
}

// Ordinal renders 1 as "1st", 2 as "2nd", 11 as "11th", 21 as "21st".
func Ordinal(n int) string {
	suffix := "th"
	switch n % 100 {
	case 11, 12, 13:
	default:
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return strconv.Itoa(n) + suffix
}
