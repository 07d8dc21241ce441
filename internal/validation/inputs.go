package validation

// NewUser is the createUser argument set.
type NewUser struct {
	Username      string `json:"username" validate:"required,min=3,max=64"`
	FavoriteGenre string `json:"favoriteGenre" validate:"notblank"`
}

// NewBook is the addBook argument set. Author is the author's display name.
type NewBook struct {
	Title     string   `json:"title" validate:"required,min=5"`
	Published int      `json:"published"`
	Author    string   `json:"author" validate:"required,min=4"`
	Genres    []string `json:"genres" validate:"dive,notblank"`
}

// AuthorBirth is the editAuthor argument set.
type AuthorBirth struct {
	Name      string `json:"name" validate:"notblank"`
	SetBornTo int    `json:"setBornTo"`
}
