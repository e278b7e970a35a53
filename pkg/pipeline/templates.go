package pipeline

// Template is a named flow of service steps.
type Template struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Flow        string `json:"flow"`
}

var Templates = []Template{
	{
		ID:          "summarize_websites",
		Name:        "Summarize Websites",
		Description: "Summarize a list of websites",
		Flow: `|> url2md |> chat::GPT-4o::"Please summarize the following news websites. What are the main stories (around 5-7)? ` +
			`Please provide links to full stories. Please be super-concise. Please prioritize the most recent stories. ` +
			`Please use the language used in the website. So if the website is Russian, write your output in Russian.` + "\n\n $$\"",
	},
	{
		ID:          "top_hacker_news",
		Name:        "Top Hacker News",
		Description: "Fetch top stories from Hacker News",
		Flow: `|> url2md |> chat::GPT-4o::"What are the top stories from the hackernews? See below. Please output in markdown. ` +
			`Please include 10 stories, along with number of comments and votes.` + "\n\n $$\"",
	},
}

func FindTemplate(id string) (Template, bool) {
	for _, t := range Templates {
		if t.ID == id {
			return t, true
		}
	}
	return Template{}, false
}
