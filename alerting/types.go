package alerting

// AlertMessage is the payload published to the alert topic
type AlertMessage struct {
	Service  string `json:"service"`
	Severity string `json:"severity"`
	Title    string `json:"title"`
	Message  string `json:"message"`
	Time     int64  `json:"time"`
}
