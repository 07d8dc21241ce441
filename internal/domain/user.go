package domain

// User is an account that can log in and run mutations.
type User struct {
	Record
	Username      string `json:"username"`
	FavoriteGenre string `json:"favorite_genre"`
}
