package domain

import "slices"

// Book is a single title in the library. Books are immutable once created.
type Book struct {
	Record
	Title     string   `json:"title"`
	Published int      `json:"published"`
	AuthorID  string   `json:"author_id"`
	Genres    []string `json:"genres"`

	// Author is populated by store reads; it is never persisted with the book.
	Author *Author `json:"-"`
}

// HasGenre reports whether the book is tagged with genre.
func (b *Book) HasGenre(genre string) bool {
	return slices.Contains(b.Genres, genre)
}
