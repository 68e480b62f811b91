package mcpserver

// NoteSyntaxContract describes the Markdown conventions the scanner
// understands, so that LLM consumers can interpret tool results and write
// notes that link correctly.
const NoteSyntaxContract = `# notegraph Note Syntax

A corpus is a directory tree of ` + "`.md`" + ` files. A note's id is its path
relative to the root without the ` + "`.md`" + ` extension (` + "`projects/plan`" + `).
Hidden files and folders (leading dot) are never scanned.

## Frontmatter

` + "```" + `markdown
---
title: Project plan        # optional; falls back to the first "# " heading, then the file name
tags: [planning, q3]       # optional; a list or a single string
aliases: [roadmap]         # optional; alternative names for link resolution
created: 2025-01-15        # optional; defaults to the file's modification time
---
` + "```" + `

A file whose frontmatter is not valid YAML is skipped and reported as a warning.

## Links

- ` + "`[[target]]`" + ` and ` + "`[[target|display text]]`" + ` create wikilinks.
- A target matches a note id, file name, title or alias, case-insensitively.
  ` + "`#heading`" + ` and ` + "`#^block`" + ` suffixes and a trailing ` + "`.md`" + ` are ignored.
- When several notes match, the first one in scan order wins.
- Links whose target matches nothing stay unresolved until such a note appears.
- ` + "`![[target]]`" + ` and ` + "`![[target#^block-id]]`" + ` are embeds, not links.
- A paragraph or list item ending in ` + "`^block-id`" + ` can be embedded by that id.

## Ordering

Manual order lives in ` + "`.notegraph-order.json`" + ` at the root: a map of folder id to
` + "`{\"files\": [...], \"folders\": [...]}`" + `. Listed entries come first, the rest follow
alphabetically. The root folder's key is the empty string.

## Graph

Wikilinks are directed edges. Notes sharing a tag get an undirected tag edge unless the tag
is carried by too many notes or the pair is already linked. A note's degree classifies it as
isolated (0), connected (1-2), well-connected (3-5) or hub (6+).
`
