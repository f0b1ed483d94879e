package domain

import "testing"

func TestSummarizeRatings(t *testing.T) {
	cases := []struct {
		name   string
		scores []int
		want   RatingSummary
	}{
		{"empty resets", nil, RatingSummary{}},
		{"single score", []int{4}, RatingSummary{Average: 4, Count: 1}},
		{"exact half", []int{5, 4}, RatingSummary{Average: 4.5, Count: 2}},
		{"rounds down thirds", []int{4, 4, 5}, RatingSummary{Average: 4.3, Count: 3}},
		{"rounds up thirds", []int{5, 5, 4}, RatingSummary{Average: 4.7, Count: 3}},
		{"mixed spread", []int{1, 3, 5, 5}, RatingSummary{Average: 3.5, Count: 4}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SummarizeRatings(tc.scores); got != tc.want {
				t.Fatalf("SummarizeRatings(%v) = %+v, want %+v", tc.scores, got, tc.want)
			}
		})
	}
}
