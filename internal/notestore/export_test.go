package notestore

// SortNotes exposes the display ordering to external tests.
var SortNotes = sortNotes
