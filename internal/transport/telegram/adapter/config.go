package adapter

import "time"

type Config struct {
	Token       string
	PollTimeout time.Duration
	// GroupPosts also turns text in public groups into posts, not only channel posts.
	GroupPosts bool
}
