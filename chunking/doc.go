// Package chunking splits conversations that reach a size threshold into
// ordered, overlapping sub-conversations.
//
// The chunker reasons only about message boundaries and byte counts. How a
// chunk is rendered back into item content is delegated to a Formatter, so
// each provider can keep its own serialized shape.
//
// Example usage:
//
//	c, err := chunking.NewChunker(
//	    chunking.WithThreshold(25000),
//	    chunking.WithOverlapMessages(2),
//	)
//	if err != nil {
//	    return err
//	}
//	items, err := c.Split(item, conv)
package chunking
