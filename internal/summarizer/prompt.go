package summarizer

import "fmt"

const promptTemplate = `You are reading the official minutes of a City of London council or committee meeting.
Residents will read your output to learn what was decided and how it affects them.

Return ONLY a JSON object with exactly these string fields:
  "title":   the name of the meeting as printed in the document (for example "Council Meeting" or "Planning and Environment Committee").
  "date":    the date the meeting was held, formatted YYYY-MM-DD.
  "summary": a resident-focused summary that follows the format below.

Summary format:
- Start with ONE sentence giving an overview of what the meeting covered.
- Then list 5 to 7 bullet points, each on its own line and starting with "• ".
- Each bullet is one or two sentences in plain language and starts with an action verb (Approved, Rejected, Increased, Deferred, ...).
- Only include decisions with a direct impact on residents: property taxes and fees, construction and road work, bylaws, zoning, public services, transit, parks and housing.
- Do NOT include procedural or administrative items: attendance, approval of the agenda or previous minutes, declarations of interest, adjournment, recesses or motions to receive reports.
- If the meeting made no decision that affects residents, write the overview sentence followed by the single bullet "• No decisions with a direct impact on residents."

Derive the title and date from the document text itself, not from any file name.

Meeting minutes:
%s`

// BuildPrompt renders the single structured request sent for one document.
func BuildPrompt(text string) string {
	return fmt.Sprintf(promptTemplate, text)
}
