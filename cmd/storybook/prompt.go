package main

import (
	"errors"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
)

// promptuiPrompter asks on the terminal.
type promptuiPrompter struct{}

func (promptuiPrompter) Story() (string, error) {
	prompt := promptui.Prompt{
		Label: "Write a story about",
		Validate: func(input string) error {
			if strings.TrimSpace(input) == "" {
				return errors.New("the story needs a prompt")
			}
			return nil
		},
	}
	return prompt.Run()
}

func (promptuiPrompter) Pages(initial, maxPages int) (int, error) {
	items := make([]string, maxPages)
	for i := range items {
		items[i] = strconv.Itoa(i + 1)
	}
	sel := promptui.Select{
		Label: "How many pages should the story be?",
		Items: items,
	}
	if initial >= 1 && initial <= len(items) {
		sel.CursorPos = initial - 1
	}
	idx, _, err := sel.Run()
	if err != nil {
		return 0, err
	}
	return idx + 1, nil
}
