package evaluation

import (
	"sort"
	"strconv"
	"strings"
)

// CanonicalID returns the decimal form of an integer query ID ("007" and
// "+7" become "7") and any other ID trimmed but otherwise unchanged.
func CanonicalID(id string) string {
	id = strings.TrimSpace(id)
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return strconv.FormatInt(n, 10)
	}
	return id
}

// JudgmentSet maps (query, document) pairs to relevance grades.
// It is safe for concurrent readers once loading is done.
type JudgmentSet struct {
	judgments map[string]map[string]int // queryID -> docID -> relevance
	count     int
}

// NewJudgmentSet creates an empty judgment set.
func NewJudgmentSet() *JudgmentSet {
	return &JudgmentSet{
		judgments: make(map[string]map[string]int),
	}
}

// NewJudgmentSetFrom builds a judgment set from a list of judgments.
func NewJudgmentSetFrom(judgments []RelevanceJudgment) *JudgmentSet {
	js := NewJudgmentSet()
	for _, j := range judgments {
		js.Add(j)
	}
	return js
}

// Add records a judgment under its canonical query ID. The first judgment
// for a pair wins; Add reports whether j was stored.
func (js *JudgmentSet) Add(j RelevanceJudgment) bool {
	qid := CanonicalID(j.QueryID)
	docs := js.judgments[qid]
	if docs == nil {
		docs = make(map[string]int)
		js.judgments[qid] = docs
	}
	if _, dup := docs[j.DocID]; dup {
		return false
	}
	docs[j.DocID] = j.Relevance
	js.count++
	return true
}

func (js *JudgmentSet) docs(queryID string) map[string]int {
	if docs, ok := js.judgments[queryID]; ok {
		return docs
	}
	return js.judgments[CanonicalID(queryID)]
}

// Relevance returns the grade for a pair, or 0 when it was never judged.
func (js *JudgmentSet) Relevance(queryID, docID string) int {
	return js.docs(queryID)[docID]
}

// Judged reports whether a pair has a judgment.
func (js *JudgmentSet) Judged(queryID, docID string) bool {
	_, ok := js.docs(queryID)[docID]
	return ok
}

// Len returns the number of stored judgments.
func (js *JudgmentSet) Len() int {
	return js.count
}

// Queries returns the judged query IDs in sorted order.
func (js *JudgmentSet) Queries() []string {
	ids := make([]string, 0, len(js.judgments))
	for id := range js.judgments {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RelevantCount returns how many documents of a query have a grade of at
// least threshold.
func (js *JudgmentSet) RelevantCount(queryID string, threshold int) int {
	n := 0
	for _, rel := range js.docs(queryID) {
		if rel >= threshold {
			n++
		}
	}
	return n
}

// IdealGrades returns a query's grades sorted best first.
func (js *JudgmentSet) IdealGrades(queryID string) []int {
	docs := js.docs(queryID)
	grades := make([]int, 0, len(docs))
	for _, rel := range docs {
		grades = append(grades, rel)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(grades)))
	return grades
}
