package prompt

// DebateInput carries everything the debate-partner prompt is assembled from.
type DebateInput struct {
	Topic       string
	History     []string // "You:"/"Opponent:" lines, oldest first
	UserMessage string
}

// BuildDebate assembles the prompts for one debate exchange. The teacher
// argues the opposing side and always ends by pushing the user to respond.
func BuildDebate(in DebateInput) (system, user string) {
	system = NewBuilder().
		Addf("You are a debate coach sparring with one student about: %s.", in.Topic).
		Add("Argue the opposing side in one short paragraph, then end with a question that invites a rebuttal.").
		String()

	b := NewBuilder()
	if len(in.History) > 0 {
		b.Add("Exchange so far:").AddAll(in.History)
	}
	b.Addf("Opponent's latest argument: %s", in.UserMessage).
		Add("Output one debate response now.")

	return system, b.String()
}
