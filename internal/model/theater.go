package model

import "time"

// Theater is a single screening of a movie.  The booking core only reads it
// to stamp MovieID on bookings and to describe checkouts.
type Theater struct {
	ID        uint64    `db:"id"`         // theaters.id
	Name      string    `db:"name"`       // theaters.name
	MovieID   uint64    `db:"movie_id"`   // theaters.movie_id
	MovieName string    `db:"movie_name"` // movies.name (joined)
	StartsAt  time.Time `db:"starts_at"`  // theaters.starts_at
}
