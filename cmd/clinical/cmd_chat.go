// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianClinical/services/cdss"
	"github.com/AleutianAI/AleutianClinical/services/cdss/guardrails"
	"github.com/AleutianAI/AleutianClinical/services/cdss/rules"
	"github.com/AleutianAI/AleutianClinical/services/consultant/agent"
	"github.com/AleutianAI/AleutianClinical/services/consultant/llm"
	"github.com/AleutianAI/AleutianClinical/services/consultant/routing"
	"github.com/AleutianAI/AleutianClinical/services/consultant/tools"
)

// baseSystemPrompt frames every persona.
const baseSystemPrompt = `You are a clinical rehabilitation consultant covering
orthopedic rehabilitation, low vision rehabilitation, and supportive mental
health care. Use the available tools for calculations and for checking any
proposed treatment against decision support. Never present a treatment the
decision support engine blocked; when it modified a proposal, present the
modified version and say what changed. You support clinicians; you do not
replace clinical judgment.`

func runChat(cmd *cobra.Command, args []string) {
	logger := newLogger("clinical-chat")
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := newRuleStore()
	if err != nil {
		log.Fatalf("Error loading rules: %v", err)
	}
	guards, err := guardrails.NewEvaluator()
	if err != nil {
		log.Fatalf("Error loading guardrails: %v", err)
	}

	if watchRules {
		if rulesPath == "" {
			log.Fatal("--watch requires --rules")
		}
		watcher, err := rules.NewWatcher(store, rulesPath, logger.Logger)
		if err != nil {
			log.Fatalf("Error watching rules file: %v", err)
		}
		if err := watcher.Start(ctx); err != nil {
			log.Fatalf("Error starting rules watcher: %v", err)
		}
		defer watcher.Stop()
		fmt.Printf("Watching %s for rule changes\n", rulesPath)
	}

	engine := cdss.NewEngine(store, guards, cdss.WithLogger(logger.Logger))

	registry := tools.NewRegistry()
	registry.Register(tools.NewCalculatorTool())
	registry.Register(tools.NewCDSSTool(engine))
	registry.Register(tools.NewThinkTool())
	executor := tools.NewExecutor(registry, nil)

	client, err := llm.NewOpenAIClient()
	if err != nil {
		log.Fatalf("Error creating model client: %v", err)
	}

	selector := routing.NewSelector()

	fmt.Printf("Clinical consultant ready (%s). Type 'exit' to quit.\n", client.Model())

	var conv *agent.Conversation
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\nYou: ")
		if !scanner.Scan() {
			break
		}
		message := strings.TrimSpace(scanner.Text())
		if message == "" {
			continue
		}
		if message == "exit" || message == "quit" {
			break
		}

		persona := selector.PersonaFor(message)
		logger.Debug("persona selected", "capability", persona.Capability)

		loop := agent.NewLoop(client, registry, executor,
			agent.LoopConfig{
				MaxRounds:    maxRounds,
				SystemPrompt: baseSystemPrompt + "\n\n" + persona.SystemInstructions,
				Parallel:     true,
			},
			agent.WithLogger(logger.Logger),
			agent.WithTools(routing.ToolsFor(persona, registry)),
		)

		fmt.Print("\nConsultant: ")
		fragments := make(chan string, 16)
		printed := make(chan struct{})
		go func() {
			defer close(printed)
			for fragment := range fragments {
				fmt.Print(fragment)
			}
		}()

		result, err := loop.RunStreamFrom(ctx, conv, message, fragments)
		<-printed
		fmt.Println()

		if err != nil {
			log.Printf("Consultation error: %v", err)
			continue
		}
		if result.Failed() {
			fmt.Printf("[consultation failed: %s]\n", result.Reason)
			if result.Reason == agent.ReasonCanceled {
				return
			}
		}
		conv = result.Conversation

		if showTrace {
			printTrace(result.Trace)
		}
	}

	if err := scanner.Err(); err != nil {
		log.Printf("Input error: %v", err)
	}
}
