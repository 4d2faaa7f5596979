// Package gmail is a per-user client for the parts of the Gmail API that
// followmail uses: thread and message search, full fetches, attachment
// downloads, and sending or drafting replies.
//
// A Client is built for one request from that user's OAuth2 token source.
// Every call takes a context, is traced as a google.gmail.<operation> span
// and recorded in the Google API metrics.
//
// Example usage:
//
//	client, err := gmail.NewClient(ctx, tokenSource, metrics)
//	if err != nil {
//	    return err
//	}
//
//	threads, err := client.ListThreads(ctx, "from:boss@example.com", 100)
//	if err != nil {
//	    return err
//	}
//
//	sent, err := client.SendReply(ctx, gmail.Reply{
//	    From:      "me@example.com",
//	    To:        "boss@example.com",
//	    Subject:   "Re: Plan",
//	    Body:      "<p>Sounds good</p>",
//	    ThreadID:  threads[0].Id,
//	    InReplyTo: "<CAF=abc@mail.gmail.com>",
//	})
package gmail
