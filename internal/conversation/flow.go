package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/zapfood/zapfood/internal/cart"
	"github.com/zapfood/zapfood/internal/catalog"
	"github.com/zapfood/zapfood/internal/classify"
	"github.com/zapfood/zapfood/internal/order"
	"github.com/zapfood/zapfood/internal/payment"
)

// Swapped in tests.
var timeNow = time.Now

// Sender is the messaging channel adapter: send text to a customer, nothing
// else. Receiving happens at the transport layer.
type Sender interface {
	Send(ctx context.Context, to, text string) error
}

// Flow drives the conversational order construction: classified messages
// move the cart session forward until a confirmed cart becomes a durable
// order with a payment link attached.
type Flow struct {
	classifier  classify.Classifier
	carts       *cart.Manager
	restaurants catalog.Repository
	orders      order.Service
	provider    payment.Provider
	sender      Sender
}

func NewFlow(classifier classify.Classifier, carts *cart.Manager, restaurants catalog.Repository, orders order.Service, provider payment.Provider, sender Sender) *Flow {
	return &Flow{
		classifier:  classifier,
		carts:       carts,
		restaurants: restaurants,
		orders:      orders,
		provider:    provider,
		sender:      sender,
	}
}

// HandleMessage processes one inbound message. Duplicate deliveries are
// expected; every path below is safe to run twice.
func (f *Flow) HandleMessage(ctx context.Context, from, text string) error {
	session, err := f.carts.Get(ctx, from)
	if err != nil && !errors.Is(err, cart.ErrSessionNotFound) {
		return err
	}

	convCtx := classify.Context{State: string(cart.StateIdle)}
	if session != nil {
		convCtx.State = string(session.State)
		convCtx.RestaurantID = session.RestaurantID.String()
	}

	result, err := f.classifier.Classify(ctx, text, convCtx)
	if err != nil {
		// Classifier outage degrades to a help fallback, never a dead end.
		log.Warn().Err(err).Str("customer", from).Msg("conversation: classifier unavailable")
		return f.reply(ctx, from, "Desculpe, não entendi. Envie *pedido* para começar ou *ajuda* para falar com um atendente.")
	}

	if !result.Validation.IsValid {
		return f.reply(ctx, from, "Não consegui entender seu pedido. Pode reformular?")
	}

	if result.Intent == classify.IntentCancel {
		return f.handleCancel(ctx, from, session)
	}

	if session == nil {
		if result.Intent == classify.IntentStartOrder {
			return f.startOrder(ctx, from)
		}
		return f.reply(ctx, from, "Envie *pedido* para começar um novo pedido.")
	}

	switch session.State {
	case cart.StateSelectingRestaurant:
		return f.handleRestaurantChoice(ctx, from, result, text)
	case cart.StateViewingMenu, cart.StateAddingItems:
		return f.handleItemEntry(ctx, from, session, result)
	case cart.StateResolvingAmbiguity:
		return f.handleAmbiguityChoice(ctx, from, session, result)
	case cart.StateConfirmingOrder:
		return f.handleConfirmation(ctx, from, session, result)
	case cart.StateAwaitingPaymentMethod:
		return f.handlePaymentMethod(ctx, from, session, text)
	case cart.StateAwaitingPayment:
		return f.handleAwaitingPayment(ctx, from, session, text)
	default:
		return f.reply(ctx, from, "Envie *pedido* para começar um novo pedido.")
	}
}

func (f *Flow) startOrder(ctx context.Context, from string) error {
	restaurants, err := f.restaurants.ListActiveRestaurants(ctx)
	if err != nil {
		return err
	}
	if len(restaurants) == 0 {
		return f.reply(ctx, from, "Nenhum restaurante disponível no momento.")
	}

	if _, err := f.carts.StartOrderCreation(ctx, from); err != nil {
		return err
	}

	var b strings.Builder
	b.WriteString("De qual restaurante você quer pedir?\n")
	for i, r := range restaurants {
		fmt.Fprintf(&b, "%d. %s\n", i+1, r.Name)
	}
	b.WriteString("Responda com o número.")
	return f.reply(ctx, from, b.String())
}

func (f *Flow) handleRestaurantChoice(ctx context.Context, from string, result *classify.Result, text string) error {
	restaurants, err := f.restaurants.ListActiveRestaurants(ctx)
	if err != nil {
		return err
	}

	var chosen *catalog.Restaurant
	if result.Choice > 0 && result.Choice <= len(restaurants) {
		chosen = &restaurants[result.Choice-1]
	} else {
		needle := strings.ToLower(strings.TrimSpace(text))
		for i := range restaurants {
			if strings.Contains(strings.ToLower(restaurants[i].Name), needle) && needle != "" {
				chosen = &restaurants[i]
				break
			}
		}
	}
	if chosen == nil {
		return f.reply(ctx, from, "Não encontrei esse restaurante. Responda com o número da lista.")
	}

	open, err := chosen.IsOpenAt(timeNow())
	if err != nil {
		return err
	}
	if !open {
		return f.reply(ctx, from, fmt.Sprintf("%s está fechado agora. Escolha outro restaurante.", chosen.Name))
	}

	if _, err := f.carts.SetRestaurant(ctx, from, chosen.ID, chosen.Name); err != nil {
		return err
	}
	return f.sendMenu(ctx, from, chosen)
}

func (f *Flow) sendMenu(ctx context.Context, from string, restaurant *catalog.Restaurant) error {
	menu, err := f.restaurants.ListMenu(ctx, restaurant.ID)
	if err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Cardápio de %s:\n", restaurant.Name)
	for _, item := range menu {
		fmt.Fprintf(&b, "• %s — %s\n", item.Name, formatCents(item.PriceCents))
	}
	b.WriteString("O que você vai querer? (ex.: \"2 x-burger e 1 coca\")")
	return f.reply(ctx, from, b.String())
}

func (f *Flow) handleItemEntry(ctx context.Context, from string, session *cart.Session, result *classify.Result) error {
	switch result.Intent {
	case classify.IntentConfirm:
		if len(session.Items) == 0 {
			return f.reply(ctx, from, "Seu carrinho está vazio. Adicione itens antes de confirmar.")
		}
		session, err := f.carts.UpdateState(ctx, from, cart.StateConfirmingOrder)
		if err != nil {
			return err
		}
		return f.reply(ctx, from, summarize(session)+"\nConfirma o pedido? (sim/não)")

	case classify.IntentRemoveItem:
		if result.Choice < 1 {
			return f.reply(ctx, from, "Qual item você quer remover? Responda com o número.")
		}
		session, err := f.carts.RemoveItem(ctx, from, result.Choice-1)
		if err != nil {
			if errors.Is(err, cart.ErrSessionNotFound) {
				return f.reply(ctx, from, "Envie *pedido* para começar um novo pedido.")
			}
			return f.reply(ctx, from, "Esse item não está no carrinho.")
		}
		return f.reply(ctx, from, "Removido.\n"+summarize(session))

	case classify.IntentViewMenu:
		restaurant, err := f.restaurants.GetRestaurant(ctx, session.RestaurantID)
		if err != nil {
			return err
		}
		return f.sendMenu(ctx, from, restaurant)

	case classify.IntentAddItem:
		if !result.Validation.IsComplete {
			missing := strings.Join(result.Validation.MissingRequired, ", ")
			return f.reply(ctx, from, fmt.Sprintf("Preciso de mais detalhes (%s). Pode completar?", missing))
		}
		return f.addItems(ctx, from, session, result)
	}

	return f.reply(ctx, from, "Pode adicionar itens, remover com \"remover N\" ou enviar *confirmar*.")
}

func (f *Flow) addItems(ctx context.Context, from string, session *cart.Session, result *classify.Result) error {
	var added []string
	for _, extracted := range result.Items {
		quantity := extracted.Quantity
		if quantity < 1 {
			quantity = 1
		}

		matches, err := f.restaurants.SearchMenu(ctx, session.RestaurantID, extracted.Name)
		if err != nil {
			return err
		}

		switch len(matches) {
		case 0:
			if err := f.reply(ctx, from, fmt.Sprintf("Não encontrei %q no cardápio.", extracted.Name)); err != nil {
				return err
			}
		case 1:
			item := matches[0]
			if _, err := f.carts.AddItem(ctx, from, cart.Line{
				MenuItemID:     item.ID,
				Name:           item.Name,
				Quantity:       quantity,
				UnitPriceCents: item.PriceCents,
			}); err != nil {
				return err
			}
			added = append(added, fmt.Sprintf("%dx %s", quantity, item.Name))
		default:
			candidates := make([]cart.Candidate, 0, len(matches))
			for _, m := range matches {
				candidates = append(candidates, cart.Candidate{MenuItemID: m.ID, Name: m.Name, PriceCents: m.PriceCents})
			}
			_, err := f.carts.SetPendingAmbiguity(ctx, from, cart.Ambiguity{
				Phrase:     extracted.Name,
				Quantity:   quantity,
				Candidates: candidates,
			})
			if errors.Is(err, cart.ErrAmbiguityPending) {
				return f.reply(ctx, from, "Primeiro me responda a pergunta anterior, por favor.")
			}
			if err != nil {
				return err
			}

			var b strings.Builder
			fmt.Fprintf(&b, "Encontrei mais de uma opção para %q:\n", extracted.Name)
			for i, c := range candidates {
				fmt.Fprintf(&b, "%d. %s — %s\n", i+1, c.Name, formatCents(c.PriceCents))
			}
			b.WriteString("Qual delas?")
			return f.reply(ctx, from, b.String())
		}
	}

	fresh, err := f.carts.Get(ctx, from)
	if err != nil {
		return err
	}

	reply := summarize(fresh)
	if len(added) > 0 {
		reply = "Adicionei " + strings.Join(added, ", ") + ".\n" + reply
	}
	for _, warning := range result.Validation.Warnings {
		reply += "\nObs: " + warning
	}
	return f.reply(ctx, from, reply+"\nMais alguma coisa? Envie *confirmar* quando terminar.")
}

func (f *Flow) handleAmbiguityChoice(ctx context.Context, from string, session *cart.Session, result *classify.Result) error {
	if result.Choice < 1 {
		return f.reply(ctx, from, "Responda com o número da opção, por favor.")
	}

	session, err := f.carts.ResolveAmbiguity(ctx, from, result.Choice-1)
	if err != nil {
		if errors.Is(err, cart.ErrNoAmbiguity) {
			return f.reply(ctx, from, "Não há nada para escolher agora. Pode continuar o pedido.")
		}
		return f.reply(ctx, from, "Opção inválida. Responda com o número da lista.")
	}
	return f.reply(ctx, from, summarize(session)+"\nMais alguma coisa? Envie *confirmar* quando terminar.")
}

func (f *Flow) handleConfirmation(ctx context.Context, from string, session *cart.Session, result *classify.Result) error {
	if result.Intent != classify.IntentConfirm {
		if _, err := f.carts.UpdateState(ctx, from, cart.StateAddingItems); err != nil {
			return err
		}
		return f.reply(ctx, from, "Sem problemas, pode ajustar o pedido. Envie *confirmar* quando terminar.")
	}

	items := make([]order.CreateItemInput, 0, len(session.Items))
	for _, line := range session.Items {
		items = append(items, order.CreateItemInput{MenuItemID: line.MenuItemID, Quantity: line.Quantity})
	}

	// The key is scoped to this cart session: a redelivered "confirmar"
	// lands on the same order, while a fresh cart started after this one is
	// abandoned gets a new key and therefore a new order.
	o, err := f.orders.Create(ctx, order.CreateInput{
		RestaurantID:   session.RestaurantID,
		CustomerID:     from,
		Items:          items,
		Status:         order.StatusNew,
		IdempotencyKey: fmt.Sprintf("%s:%s:%s", from, session.RestaurantID, session.ID),
	})
	if err != nil {
		switch {
		case errors.Is(err, order.ErrRestaurantClosed):
			return f.reply(ctx, from, "O restaurante fechou enquanto você montava o pedido. Tente novamente mais tarde.")
		case errors.Is(err, order.ErrRestaurantInactive):
			return f.reply(ctx, from, "O restaurante não está aceitando pedidos no momento. Tente outro restaurante.")
		case errors.Is(err, order.ErrItemUnavailable):
			return f.reply(ctx, from, "Um dos itens acabou de ficar indisponível. Remova-o e confirme de novo.")
		case errors.Is(err, catalog.ErrMenuItemNotFound):
			return f.reply(ctx, from, "Um dos itens saiu do cardápio. Remova-o e confirme de novo.")
		default:
			return err
		}
	}

	if _, err := f.carts.AttachOrder(ctx, from, o.ID); err != nil {
		return err
	}
	if _, err := f.carts.UpdateState(ctx, from, cart.StateAwaitingPaymentMethod); err != nil {
		return err
	}

	return f.reply(ctx, from, fmt.Sprintf(
		"Pedido nº %d confirmado! Total: %s.\nComo você quer pagar? (pix ou cartão)",
		o.DailySequence, formatCents(o.TotalCents)))
}

func (f *Flow) handlePaymentMethod(ctx context.Context, from string, session *cart.Session, text string) error {
	method := parsePaymentMethod(text)
	if method == "" {
		return f.reply(ctx, from, "Aceitamos *pix* ou *cartão*. Qual você prefere?")
	}

	o, err := f.orders.GetByID(ctx, session.OrderID)
	if err != nil {
		return err
	}

	created, err := f.provider.CreatePayment(ctx, payment.CreatePaymentInput{
		OrderID:     o.ID,
		AmountCents: o.TotalCents,
		Method:      method,
	})
	if err != nil {
		log.Error().Err(err).Stringer("order_id", o.ID).Msg("conversation: payment creation failed")
		return f.reply(ctx, from, "Não consegui gerar o link de pagamento agora. Tente de novo em instantes.")
	}

	if _, err := f.orders.AttachPayment(ctx, o.ID, method, created.PaymentLink, created.PaymentID); err != nil {
		return err
	}
	if _, err := f.carts.UpdateState(ctx, from, cart.StateAwaitingPayment); err != nil {
		return err
	}

	reply := "Pague pelo link abaixo e seu pedido vai direto para a cozinha:\n" + created.PaymentLink
	if created.QRCode != "" {
		reply += "\nOu use o QR code: " + created.QRCode
	}
	return f.reply(ctx, from, reply)
}

// handleAwaitingPayment covers the window between sending the payment link
// and the provider webhook. The webhook settles the order out of band, so
// the current status decides whether the session is still alive: an order
// past AWAITING_PAYMENT releases the session and the message is handled
// fresh, instead of trapping the customer until the TTL runs out.
func (f *Flow) handleAwaitingPayment(ctx context.Context, from string, session *cart.Session, text string) error {
	o, getErr := f.orders.GetByID(ctx, session.OrderID)
	if getErr != nil && !errors.Is(getErr, order.ErrNotFound) {
		return getErr
	}
	if getErr == nil && o.Status == order.StatusAwaitingPayment {
		return f.reply(ctx, from, "Estamos aguardando a confirmação do pagamento. Assim que cair, seu pedido vai direto para a cozinha!")
	}

	if err := f.carts.End(ctx, from); err != nil {
		return err
	}
	if getErr == nil && o.Status == order.StatusPaid {
		if err := f.reply(ctx, from, fmt.Sprintf("Pagamento do pedido nº %d confirmado!", o.DailySequence)); err != nil {
			return err
		}
	}
	return f.HandleMessage(ctx, from, text)
}

func (f *Flow) handleCancel(ctx context.Context, from string, session *cart.Session) error {
	if session == nil {
		return f.reply(ctx, from, "Você não tem pedido em andamento.")
	}

	if session.OrderID != uuid.Nil {
		if _, err := f.orders.Cancel(ctx, session.OrderID); err != nil {
			switch {
			case errors.Is(err, order.ErrCancelPaid):
				// The order stands; only the conversation session ends, so the
				// customer is free to start another one.
				if endErr := f.carts.End(ctx, from); endErr != nil {
					return endErr
				}
				return f.reply(ctx, from, "Esse pedido já foi pago. Fale com o restaurante para um reembolso.")
			case errors.Is(err, order.ErrCancelInPreparation):
				if endErr := f.carts.End(ctx, from); endErr != nil {
					return endErr
				}
				return f.reply(ctx, from, "O pedido já está em preparo e não pode mais ser cancelado.")
			case errors.Is(err, order.ErrNotFound):
				// Session pointed at a lost order; just drop the cart.
			default:
				return err
			}
		}
	}

	if err := f.carts.End(ctx, from); err != nil {
		return err
	}
	return f.reply(ctx, from, "Pedido cancelado. Envie *pedido* quando quiser começar de novo.")
}

func (f *Flow) reply(ctx context.Context, to, text string) error {
	if err := f.sender.Send(ctx, to, text); err != nil {
		return fmt.Errorf("conversation: send to %s: %w", to, err)
	}
	return nil
}

func summarize(session *cart.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Seu pedido em %s:\n", session.RestaurantName)
	for i, line := range session.Items {
		fmt.Fprintf(&b, "%d. %dx %s — %s\n", i+1, line.Quantity, line.Name, formatCents(line.LineTotalCents))
	}
	fmt.Fprintf(&b, "Total: %s", formatCents(session.TotalCents))
	return b.String()
}

func parsePaymentMethod(text string) string {
	normalized := strings.ToLower(strings.TrimSpace(text))
	switch {
	case strings.Contains(normalized, "pix"):
		return "pix"
	case strings.Contains(normalized, "cart"), strings.Contains(normalized, "card"), strings.Contains(normalized, "crédito"), strings.Contains(normalized, "credito"):
		return "credit_card"
	}
	return ""
}

func formatCents(cents int64) string {
	return fmt.Sprintf("R$ %d,%02d", cents/100, cents%100)
}
