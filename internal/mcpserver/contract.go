package mcpserver

// NoteFormatContract describes how Vellum maps notes to files, for LLM
// consumers creating or editing notes.
const NoteFormatContract = `# Vellum Note Format Contract

Every note is one file directly inside the notes directory.

## Files

- The **file name is the title**: ` + "`" + `Groceries.rtf` + "`" + ` is the note "Groceries".
  Renaming a note renames its file.
- Characters ` + "`" + `/ \ : * ? " < > |` + "`" + ` and control characters in a title become ` + "`" + `-` + "`" + `.
  Leading and trailing spaces and dots are dropped. An empty title becomes "Untitled".
- When a name is taken, a timestamp suffix is added: ` + "`" + `Todo 2024-03-09 143005.rtf` + "`" + `.
- New notes use the primary format (RTF unless configured otherwise). Markdown (` + "`" + `.md` + "`" + `)
  and plain text (` + "`" + `.txt` + "`" + `) files are notes too.
- Dotfiles and names ending in ` + "`" + `~` + "`" + ` are ignored.

## Content

- RTF notes store RTF markup. Plain text sent to an RTF note is wrapped into a minimal
  RTF document, so sending plain text is fine.
- Markdown and plain text notes begin with the title as their first paragraph:

` + "```" + `text
Groceries

- milk
- eggs
` + "```" + `

  A rename rewrites that first paragraph.

## Metadata

- Tags, the pinned flag and the note id are kept outside the content. Do not write them
  into the body; use ` + "`" + `set_tags` + "`" + ` and ` + "`" + `toggle_pin` + "`" + `.
- Tags are trimmed and lower-cased; duplicates collapse.
- The id never changes, even across renames. Prefer ids over paths.

## Concurrency

- ` + "`" + `read_note` + "`" + ` returns a ` + "`" + `checksum` + "`" + `. Pass it as ` + "`" + `if_match` + "`" + ` to
  ` + "`" + `update_note` + "`" + ` to fail instead of overwriting a concurrent edit.

## Deleting

- ` + "`" + `delete_note` + "`" + ` moves the file to the trash; nothing is unlinked.
`
