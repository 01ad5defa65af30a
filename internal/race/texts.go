package race

import "math/rand"

// Texts is the fixed corpus the host draws from when starting a race.
var Texts = []string{
	`The city never sleeps. Beneath the flickering neon canopy, vendors hawk steaming bowls of ramen while drones weave between skyscrapers like silver fish through a glass sea. Data cables run under every surface, carrying the dreams of ten million connected souls. To live here is to exist in two worlds at once: the physical crush of bodies and concrete, and the invisible digital realm layered over everything like a second sky. Those who can read both worlds — the glowing signs above and the data streams below — are the true navigators of this age. Everyone else is just passing through.`,
	`Rain has a way of erasing the boundaries between things. Puddles reflect neon signs in shattered fragments, making the wet street look like a mosaic of broken light. Pedestrians become silhouettes with glowing edges, their umbrellas like black mushrooms pushing through a luminous underworld. The rhythm of the rain on the pavement is the city's own heartbeat, steady and relentless, punctuated by the hiss of tires and the distant thunder that rolls between towers. On nights like this, even the most hardened city dweller pauses, looks up, and remembers they are small.`,
	`Typing is a skill that rewards patience above all else. The fingers that move fastest are rarely the ones that started fastest — they are the ones that built their speed slowly, deliberately, through thousands of hours of careful repetition. Every character is a micro-decision: which finger, which motion, which fraction of a second. Speed emerges from the elimination of hesitation, and hesitation fades only when the body knows the keyboard so well that thought and motion become the same event. Practice is not punishment. Practice is the slow accumulation of mastery, one keystroke at a time, until fluency becomes invisible.`,
	`Space is not empty. Between the visible stars, threads of gas and magnetic fields connect everything in a vast invisible web. Galaxies pull on each other across distances too great to comprehend, their influence travelling at the speed of gravity itself. Black holes anchor the centres of almost every galaxy we have studied, spinning slowly like cosmic engines powering the structure of the universe. Light that left distant stars before Earth existed is only now reaching our telescopes, carrying ancient information about a universe we can barely see. We are, in every sense, looking at ghosts — the radiant echoes of things long transformed.`,
	`The archive was three floors underground, temperature-controlled to the exact degree required to preserve paper that was older than any living institution. Rows of grey metal shelves stretched into darkness beyond the reach of the portable lights the researcher carried. Every box held a fragment of a world that had believed itself permanent. Letters, receipts, maps, census records — each one a small act of preservation by someone who had sensed, rightly, that the details mattered. The researcher moved carefully, gloves on, breath fogging slightly in the cool air, reading a world that had not expected to be read.`,
	`Networks are not built from cables alone. They are built from trust — the quiet agreement between machines that the data passing between them is worth protecting, routing, and delivering intact. Every packet carries a tiny flag that says: I came from somewhere real, and I am going somewhere real, and I matter. The engineers who designed these protocols in sparse academic offices never imagined the volume that would one day travel through their inventions. Yet the architecture holds, because it was built on sound principles: redundancy, error correction, and the fundamental assumption that the message must get through.`,
	`Mountains teach humility in a way that nothing else can. They are indifferent to schedules, to ambitions, to the urgency that drives human beings through their daily lives. A storm on a high ridge waits for no one, and the climber who argues with the weather always loses. What the mountains offer instead is a different kind of clarity — a sense of scale that persists long after the descent. Problems that seemed overwhelming at sea level shrink when measured against granite ridgelines that have stood for millions of years. The peak is not the point. Learning to belong to something larger than yourself is.`,
}

// PickText selects one race text at random.
func PickText() string {
	return Texts[rand.Intn(len(Texts))]
}
