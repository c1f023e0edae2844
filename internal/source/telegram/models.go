package telegram

// Wire structures for the Telegram gateway API.

type sessionResponse struct {
	Authorized bool `json:"authorized"`
}

type entityResponse struct {
	ID        int64  `json:"id"`
	Handle    string `json:"handle"`
	Title     string `json:"title"`
	Type      string `json:"type"`
	Broadcast bool   `json:"broadcast"`
}

type fullChannelResponse struct {
	ID               int64  `json:"id"`
	Handle           string `json:"handle"`
	Title            string `json:"title"`
	About            string `json:"about"`
	Verified         bool   `json:"verified"`
	ParticipantsCount int64 `json:"participants_count"`
}

type messagesResponse struct {
	Messages []wireMessage `json:"messages"`
}

type wireMessage struct {
	ID        int64   `json:"id"`
	Type      string  `json:"type"`
	Text      *string `json:"text"`
	MediaURL  *string `json:"media_url"`
	Views     int64   `json:"views"`
	Forwards  int64   `json:"forwards"`
	Replies   int64   `json:"replies"`
	Reactions int64   `json:"reactions"`
	HasLinks  bool    `json:"has_links"`
	PostedAt  *string `json:"posted_at"`
}

type floodWaitResponse struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retry_after"`
}
