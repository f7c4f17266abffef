// Package tier defines the ordered table of stream-processing capacity tiers.
// Tiers are compared by their position in the table, never lexically:
// SP5 sorts below SP10 even though "SP5" > "SP10" as strings.
package tier
